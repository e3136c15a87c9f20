package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pacsops/dicomqr/client"
	"github.com/pacsops/dicomqr/dicom"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/services"
	"github.com/pacsops/dicomqr/types"
)

// startServer runs srv on an ephemeral port and returns its address.
func startServer(t *testing.T, srv *Server) (string, context.CancelFunc) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return listener.Addr().String(), cancel
}

func TestServeEchoAndStore(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
	)
	registry := services.NewRegistry(nil)
	registry.Register(types.CEchoRQ, services.NewEchoService(nil))
	registry.Register(types.CStoreRQ, services.NewStoreService(
		func(sopClass, sopInstance, ts string, data []byte) uint16 {
			mu.Lock()
			received = append(received, sopInstance)
			mu.Unlock()
			return types.StatusSuccess
		}, nil))

	srv := New("RECEIVER", registry)
	addr, _ := startServer(t, srv)

	assoc, err := client.Open(addr, client.Config{
		CallingAETitle: "DICOMQR",
		CalledAETitle:  "RECEIVER",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		RequestedContexts: []string{
			types.VerificationSOPClass,
			types.CTImageStorage,
		},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := assoc.Echo(); err != nil {
		t.Errorf("Echo() error = %v", err)
	}

	instance := dicom.NewDataset()
	instance.AddString(dicom.TagSOPClassUID, types.CTImageStorage)
	instance.AddString(dicom.TagSOPInstanceUID, "1.2.3.4.5")
	instance.AddString(dicom.TagPatientName, "DOE^JOHN")
	if err := assoc.Store(instance); err != nil {
		t.Errorf("Store() error = %v", err)
	}

	if err := assoc.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "1.2.3.4.5" {
		t.Errorf("received instances = %v", received)
	}
}

func TestServeRejectsUnknownCalledAET(t *testing.T) {
	registry := services.NewRegistry(nil)
	registry.Register(types.CEchoRQ, services.NewEchoService(nil))

	srv := New("RECEIVER", registry)
	addr, _ := startServer(t, srv)

	_, err := client.Open(addr, client.Config{
		CallingAETitle: "DICOMQR",
		CalledAETitle:  "NOBODY",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
	})
	var rejected *dicomerr.AssociationRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Open() error = %v, want AssociationRejectedError", err)
	}
	if rejected.Reason != dicomerr.RejectReasonCalledAETNotRecognized {
		t.Errorf("reject reason = %v", rejected.Reason)
	}
}

func TestServeRejectsUnservedAbstractSyntax(t *testing.T) {
	registry := services.NewRegistry(nil)
	registry.Register(types.CEchoRQ, services.NewEchoService(nil))

	// Verification only; query/retrieve contexts must come back rejected.
	srv := New("RECEIVER", registry, WithAbstractSyntaxes([]string{types.VerificationSOPClass}))
	addr, _ := startServer(t, srv)

	assoc, err := client.Open(addr, client.Config{
		CallingAETitle: "DICOMQR",
		CalledAETitle:  "RECEIVER",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer assoc.Release()

	if _, err := assoc.ContextFor(types.VerificationSOPClass); err != nil {
		t.Errorf("verification context not accepted: %v", err)
	}
	if _, err := assoc.ContextFor(types.StudyRootQueryRetrieveFind); err == nil {
		t.Error("unserved abstract syntax accepted")
	}
}
