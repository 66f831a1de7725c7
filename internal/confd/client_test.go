package confd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/generator"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 2*time.Second, zerolog.Nop())
}

func TestFindParticipantByChannel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/1.1/lines":
			if got := r.URL.Query().Get("name"); got != "as2mkq" {
				t.Errorf("line name = %q, want as2mkq", got)
			}
			w.Write([]byte(`{"items":[{"id":12,"name":"as2mkq","tenant_uuid":"tenant-1",
				"users":[{"uuid":"user-1"}],
				"extensions":[{"exten":"101","context":"internal"}]}]}`))
		case "/1.1/users/user-1":
			w.Write([]byte(`{"uuid":"user-1","tenant_uuid":"tenant-1","userfield":"vip, support"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p, err := client.FindParticipantByChannel(context.Background(), "SIP/as2mkq-0000001f")
	if err != nil {
		t.Fatalf("FindParticipantByChannel: %v", err)
	}
	if p == nil {
		t.Fatal("expected participant, got nil")
	}
	if p.UUID != "user-1" || p.LineID != 12 || p.TenantUUID != "tenant-1" {
		t.Fatalf("participant = %+v", p)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "vip" || p.Tags[1] != "support" {
		t.Fatalf("tags = %v, want [vip support]", p.Tags)
	}
	if p.MainExtension == nil || p.MainExtension.Exten != "101" || p.MainExtension.Context != "internal" {
		t.Fatalf("main extension = %+v", p.MainExtension)
	}
}

func TestFindParticipantByChannelUnknownLine(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	})

	p, err := client.FindParticipantByChannel(context.Background(), "SIP/nobody-00000001")
	if err != nil {
		t.Fatalf("FindParticipantByChannel: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil participant, got %+v", p)
	}
}

func TestFindParticipantByUUIDNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	p, err := client.FindParticipantByUUID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("FindParticipantByUUID: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil participant, got %+v", p)
	}
}

func TestServerErrorIsDirectoryUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.FindParticipantByUUID(context.Background(), "user-1")
	if !errors.Is(err, generator.ErrDirectoryUnavailable) {
		t.Fatalf("err = %v, want ErrDirectoryUnavailable", err)
	}
}

func TestListContexts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.1/contexts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"items":[{"name":"from-extern","tenant_uuid":"tenant-2"}]}`))
	})

	contexts, err := client.ListContexts(context.Background(), "from-extern")
	if err != nil {
		t.Fatalf("ListContexts: %v", err)
	}
	if len(contexts) != 1 || contexts[0].TenantUUID != "tenant-2" {
		t.Fatalf("contexts = %+v", contexts)
	}
}
