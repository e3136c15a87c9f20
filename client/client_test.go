package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pacsops/dicomqr/dicom"
	"github.com/pacsops/dicomqr/dimse"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/pdu"
	"github.com/pacsops/dicomqr/types"
)

// mockConn implements net.Conn over in-memory buffers. Reads consume the
// scripted peer traffic; writes accumulate for inspection.
type mockConn struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	closed   bool
}

func newMockConn() *mockConn {
	return &mockConn{
		readBuf:  new(bytes.Buffer),
		writeBuf: new(bytes.Buffer),
	}
}

func (m *mockConn) Read(b []byte) (int, error) {
	if m.closed {
		return 0, io.EOF
	}
	return m.readBuf.Read(b)
}

func (m *mockConn) Write(b []byte) (int, error) {
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	return m.writeBuf.Write(b)
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// script appends one DIMSE message to the peer traffic the mock will serve.
func script(t *testing.T, conn *mockConn, contextID byte, msg *types.Message, dataset []byte) {
	t.Helper()
	for _, p := range pdu.Fragment(contextID, true, dimse.EncodeCommand(msg), 16384) {
		conn.readBuf.Write(p.Encode())
	}
	if msg.HasDataSet() {
		for _, p := range pdu.Fragment(contextID, false, dataset, 16384) {
			conn.readBuf.Write(p.Encode())
		}
	}
}

// newTestAssociation builds an established association over conn with a
// fixed set of accepted contexts.
func newTestAssociation(conn net.Conn) *Association {
	cfg := Config{CallingAETitle: "DICOMQR", CalledAETitle: "ORTHANC"}
	cfg.applyDefaults()

	a := &Association{
		conn:   conn,
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateEstablished,
		contexts: map[byte]*PresentationContext{
			1: {ID: 1, AbstractSyntax: types.VerificationSOPClass, TransferSyntax: types.ExplicitVRLittleEndian, Accepted: true},
			3: {ID: 3, AbstractSyntax: types.StudyRootQueryRetrieveFind, TransferSyntax: types.ExplicitVRLittleEndian, Accepted: true},
			5: {ID: 5, AbstractSyntax: types.StudyRootQueryRetrieveMove, TransferSyntax: types.ExplicitVRLittleEndian, Accepted: true},
			7: {ID: 7, AbstractSyntax: types.StudyRootQueryRetrieveGet, TransferSyntax: types.ExplicitVRLittleEndian, Accepted: true},
			9: {ID: 9, AbstractSyntax: types.CTImageStorage, TransferSyntax: types.ExplicitVRLittleEndian, Accepted: true},
		},
		peerMaxPDU: 16384,
	}
	a.exchange = dimse.NewExchange(a, a.peerMaxPDU, a.logger)
	return a
}

func TestNegotiateAccept(t *testing.T) {
	conn := newMockConn()
	ac := &pdu.AssociateAC{
		CalledAETitle:      "ORTHANC",
		CallingAETitle:     "DICOMQR",
		ApplicationContext: types.ApplicationContextUID,
		PresentationContexts: []pdu.AcceptedPresentationContext{
			{ID: 1, Result: pdu.ResultAcceptance, TransferSyntax: types.ExplicitVRLittleEndian},
			{ID: 3, Result: pdu.ResultAbstractSyntaxReject},
		},
		MaxPDULength: 32768,
	}
	conn.readBuf.Write(ac.Encode())

	cfg := Config{CallingAETitle: "DICOMQR", CalledAETitle: "ORTHANC"}
	cfg.applyDefaults()
	cfg.RequestedContexts = []string{types.VerificationSOPClass, types.StudyRootQueryRetrieveFind}

	a := &Association{conn: conn, cfg: cfg, logger: cfg.Logger, contexts: make(map[byte]*PresentationContext)}
	if err := a.negotiate(); err != nil {
		t.Fatalf("negotiate() error = %v", err)
	}

	if a.peerMaxPDU != 32768 {
		t.Errorf("peer max PDU = %d, want 32768", a.peerMaxPDU)
	}
	pc, err := a.ContextFor(types.VerificationSOPClass)
	if err != nil {
		t.Fatalf("ContextFor(verification) error = %v", err)
	}
	if pc.TransferSyntax != types.ExplicitVRLittleEndian {
		t.Errorf("transfer syntax = %s", pc.TransferSyntax)
	}
	if _, err := a.ContextFor(types.StudyRootQueryRetrieveFind); err == nil {
		t.Error("rejected context resolved as accepted")
	}

	// The mock recorded an A-ASSOCIATE-RQ.
	written, err := pdu.ReadPDU(conn.writeBuf)
	if err != nil {
		t.Fatalf("reading written PDU: %v", err)
	}
	rq, ok := written.(*pdu.AssociateRQ)
	if !ok {
		t.Fatalf("first written PDU is %T, want AssociateRQ", written)
	}
	if len(rq.PresentationContexts) != 2 {
		t.Errorf("proposed %d contexts, want 2", len(rq.PresentationContexts))
	}
}

func TestNegotiateRejection(t *testing.T) {
	conn := newMockConn()
	rj := &pdu.AssociateRJ{
		Result: 0x01,
		Source: byte(dicomerr.RejectSourceServiceUser),
		Reason: byte(dicomerr.RejectReasonCalledAETNotRecognized),
	}
	conn.readBuf.Write(rj.Encode())

	cfg := Config{}
	cfg.applyDefaults()
	a := &Association{conn: conn, cfg: cfg, logger: cfg.Logger, contexts: make(map[byte]*PresentationContext)}

	err := a.negotiate()
	var rejected *dicomerr.AssociationRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("negotiate() error = %v, want AssociationRejectedError", err)
	}
	if rejected.Source != dicomerr.RejectSourceServiceUser {
		t.Errorf("reject source = %v", rejected.Source)
	}
}

func TestNegotiateNoCommonTransferSyntax(t *testing.T) {
	conn := newMockConn()
	// Peer "accepts" with a syntax we never proposed.
	ac := &pdu.AssociateAC{
		ApplicationContext: types.ApplicationContextUID,
		PresentationContexts: []pdu.AcceptedPresentationContext{
			{ID: 1, Result: pdu.ResultAcceptance, TransferSyntax: types.DeflatedExplicitVRLittleEndian},
		},
		MaxPDULength: 16384,
	}
	conn.readBuf.Write(ac.Encode())

	cfg := Config{}
	cfg.applyDefaults()
	cfg.RequestedContexts = []string{types.VerificationSOPClass}
	a := &Association{conn: conn, cfg: cfg, logger: cfg.Logger, contexts: make(map[byte]*PresentationContext)}

	if err := a.negotiate(); !errors.Is(err, dicomerr.ErrNoPresentationCtx) {
		t.Fatalf("negotiate() error = %v, want ErrNoPresentationCtx", err)
	}
}

func TestEcho(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	script(t, conn, 1, &types.Message{
		CommandField:              types.CEchoRSP,
		MessageIDBeingRespondedTo: 1,
		AffectedSOPClassUID:       types.VerificationSOPClass,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusSuccess,
	}, nil)

	if err := a.Echo(); err != nil {
		t.Fatalf("Echo() error = %v", err)
	}
}

func TestEchoFailureStatus(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	script(t, conn, 1, &types.Message{
		CommandField:              types.CEchoRSP,
		MessageIDBeingRespondedTo: 1,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusUnableToProcess,
	}, nil)

	err := a.Echo()
	var failure *dicomerr.ServiceFailureError
	if !errors.As(err, &failure) {
		t.Fatalf("Echo() error = %v, want ServiceFailureError", err)
	}
	if failure.Status != types.StatusUnableToProcess {
		t.Errorf("status = 0x%04X", failure.Status)
	}
}

func findIdentifier() *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.AddString(dicom.TagQueryRetrieveLevel, "STUDY")
	ds.AddString(dicom.TagPatientName, "")
	return ds
}

func matchDataset(t *testing.T, name string) []byte {
	t.Helper()
	ds := dicom.NewDataset()
	ds.AddString(dicom.TagQueryRetrieveLevel, "STUDY")
	ds.AddString(dicom.TagPatientName, name)
	encoded, err := dicom.Encode(ds, types.ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("encoding match dataset: %v", err)
	}
	return encoded
}

func TestFindIteratesPendingMatches(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)

	for _, name := range []string{"DOE^JOHN", "ROE^JANE"} {
		script(t, conn, 3, &types.Message{
			CommandField:              types.CFindRSP,
			MessageIDBeingRespondedTo: 1,
			AffectedSOPClassUID:       types.StudyRootQueryRetrieveFind,
			CommandDataSetType:        types.DataSetPresent,
			Status:                    types.StatusPending,
		}, matchDataset(t, name))
	}
	script(t, conn, 3, &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: 1,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusSuccess,
	}, nil)

	it, err := a.Find(types.StudyRootQueryRetrieveFind, findIdentifier())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	var names []string
	for it.Next() {
		names = append(names, it.Dataset().GetString(dicom.TagPatientName))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterator error = %v", err)
	}
	if it.Status() != types.StatusSuccess {
		t.Errorf("terminal status = 0x%04X", it.Status())
	}
	if len(names) != 2 || names[0] != "DOE^JOHN" || names[1] != "ROE^JANE" {
		t.Errorf("matches = %v", names)
	}
	// Exhausted iterators stay exhausted.
	if it.Next() {
		t.Error("Next() = true after terminal response")
	}
}

func TestFindFailureStatus(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	script(t, conn, 3, &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: 1,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusOutOfResources,
	}, nil)

	it, err := a.Find(types.StudyRootQueryRetrieveFind, findIdentifier())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if it.Next() {
		t.Fatal("Next() = true for failure response")
	}
	var failure *dicomerr.ServiceFailureError
	if !errors.As(it.Err(), &failure) {
		t.Fatalf("iterator error = %v, want ServiceFailureError", it.Err())
	}
}

func TestFindCancelTerminates(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	script(t, conn, 3, &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: 1,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusCancel,
	}, nil)

	it, err := a.Find(types.StudyRootQueryRetrieveFind, findIdentifier())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if err := it.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if it.Next() {
		t.Fatal("Next() = true after cancel")
	}
	if it.Err() != nil {
		t.Errorf("cancel completion is not an error, got %v", it.Err())
	}
	if it.Status() != types.StatusCancel {
		t.Errorf("terminal status = 0x%04X, want cancel", it.Status())
	}
}

func TestMoveReportsProgress(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)

	remaining, completed := uint16(1), uint16(1)
	script(t, conn, 5, &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      1,
		CommandDataSetType:             types.NoDataSet,
		Status:                         types.StatusPending,
		NumberOfRemainingSuboperations: &remaining,
		NumberOfCompletedSuboperations: &completed,
	}, nil)
	final := uint16(2)
	zero := uint16(0)
	script(t, conn, 5, &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      1,
		CommandDataSetType:             types.NoDataSet,
		Status:                         types.StatusSuccess,
		NumberOfCompletedSuboperations: &final,
		NumberOfFailedSuboperations:    &zero,
	}, nil)

	var snapshots []SubOperations
	result, err := a.Move(context.Background(), types.StudyRootQueryRetrieveMove, "RECEIVER", findIdentifier(),
		func(s SubOperations) { snapshots = append(snapshots, s) })
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if len(snapshots) != 1 || snapshots[0].Remaining != 1 || snapshots[0].Completed != 1 {
		t.Errorf("progress snapshots = %+v", snapshots)
	}
	if result.Status != types.StatusSuccess || result.SubOperations.Completed != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestGetDispatchesInterleavedStores(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)

	instance := dicom.NewDataset()
	instance.AddString(dicom.TagSOPClassUID, types.CTImageStorage)
	instance.AddString(dicom.TagSOPInstanceUID, "1.2.3.4.5")
	instance.AddString(dicom.TagPatientName, "DOE^JOHN")
	instanceBytes, err := dicom.Encode(instance, types.ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("encoding instance: %v", err)
	}

	// Peer sends the instance on the storage context, then the final C-GET
	// response on the original context.
	script(t, conn, 9, &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              20,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3.4.5",
		CommandDataSetType:     types.DataSetPresent,
	}, instanceBytes)
	done := uint16(1)
	script(t, conn, 7, &types.Message{
		CommandField:                   types.CGetRSP,
		MessageIDBeingRespondedTo:      1,
		CommandDataSetType:             types.NoDataSet,
		Status:                         types.StatusSuccess,
		NumberOfCompletedSuboperations: &done,
	}, nil)

	var gotUID string
	result, err := a.Get(context.Background(), types.StudyRootQueryRetrieveGet, findIdentifier(),
		func(sopClass, sopInstance, ts string, data []byte) uint16 {
			gotUID = sopInstance
			if ds, err := dicom.Decode(data, ts); err != nil || ds.GetString(dicom.TagPatientName) != "DOE^JOHN" {
				t.Errorf("instance decode failed: %v", err)
			}
			return types.StatusSuccess
		}, nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotUID != "1.2.3.4.5" {
		t.Errorf("handler saw instance %q", gotUID)
	}
	if result.SubOperations.Completed != 1 {
		t.Errorf("completed = %d, want 1", result.SubOperations.Completed)
	}

	// The association answered the store: C-GET-RQ first, then C-STORE-RSP.
	var commands []uint16
	for conn.writeBuf.Len() > 0 {
		p, err := pdu.ReadPDU(conn.writeBuf)
		if err != nil {
			t.Fatalf("reading written PDU: %v", err)
		}
		pdata, ok := p.(*pdu.PDataTF)
		if !ok || len(pdata.Values) == 0 || !pdata.Values[0].Command {
			continue
		}
		msg, err := dimse.DecodeCommand(pdata.Values[0].Data)
		if err != nil {
			t.Fatalf("decoding written command: %v", err)
		}
		commands = append(commands, msg.CommandField)
	}
	if len(commands) != 2 || commands[0] != types.CGetRQ || commands[1] != types.CStoreRSP {
		t.Errorf("written commands = %04X", commands)
	}
}

func TestStoreSuccess(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	script(t, conn, 9, &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: 1,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusSuccess,
	}, nil)

	instance := dicom.NewDataset()
	instance.AddString(dicom.TagSOPClassUID, types.CTImageStorage)
	instance.AddString(dicom.TagSOPInstanceUID, "1.2.3.4.5")
	if err := a.Store(instance); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
}

func TestReleaseHandshake(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	conn.readBuf.Write((&pdu.ReleaseRP{}).Encode())

	if err := a.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if a.State() != StateClosed {
		t.Errorf("state = %v, want closed", a.State())
	}
	if !conn.closed {
		t.Error("transport left open after release")
	}
}

func TestAbortNeverFails(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)

	a.Abort(pdu.AbortReasonNotSpecified)
	if a.State() != StateAborted {
		t.Errorf("state = %v, want aborted", a.State())
	}
	// Idempotent on a dead transport.
	a.Abort(pdu.AbortReasonNotSpecified)
}

func TestRequestsRequireEstablishedState(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	a.setState(StateClosed)

	if err := a.Echo(); !errors.Is(err, dicomerr.ErrNotEstablished) {
		t.Errorf("Echo() error = %v, want ErrNotEstablished", err)
	}
	if _, err := a.Find(types.StudyRootQueryRetrieveFind, findIdentifier()); !errors.Is(err, dicomerr.ErrNotEstablished) {
		t.Errorf("Find() error = %v, want ErrNotEstablished", err)
	}
}

func TestFindNoMatches(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)
	script(t, conn, 3, &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: 1,
		CommandDataSetType:        types.NoDataSet,
		Status:                    types.StatusSuccess,
	}, nil)

	it, err := a.Find(types.StudyRootQueryRetrieveFind, findIdentifier())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if it.Next() {
		t.Error("Next() = true for empty result set")
	}
	if err := it.Err(); err != nil {
		t.Errorf("iterator error = %v", err)
	}
	if it.Status() != types.StatusSuccess {
		t.Errorf("terminal status = 0x%04X", it.Status())
	}
}

func TestOpenTimeoutClosesTransport(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	// The peer accepts but never answers the associate request.
	_, err = Open(listener.Addr().String(), Config{
		CallingAETitle: "DICOMQR",
		CalledAETitle:  "SILENT",
		ReadTimeout:    100 * time.Millisecond,
	})
	var timeout *dicomerr.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("Open() error = %v, want TimeoutError", err)
	}

	select {
	case conn := <-accepted:
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 1024)
		for {
			if _, err := conn.Read(buf); err != nil {
				if err != io.EOF {
					t.Errorf("peer read ended with %v, want EOF", err)
				}
				break
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never saw the connection")
	}
}

func TestFindAbortsOnUnrecognizedPDU(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)

	script(t, conn, 3, &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: 1,
		AffectedSOPClassUID:       types.StudyRootQueryRetrieveFind,
		CommandDataSetType:        types.DataSetPresent,
		Status:                    types.StatusPending,
	}, matchDataset(t, "DOE^JOHN"))
	// A PDU type the upper layer does not define, with an empty body.
	conn.readBuf.Write([]byte{0x7F, 0x00, 0x00, 0x00, 0x00, 0x00})

	it, err := a.Find(types.StudyRootQueryRetrieveFind, findIdentifier())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if !it.Next() {
		t.Fatalf("Next() = false before the bad PDU, error = %v", it.Err())
	}
	if it.Next() {
		t.Fatal("Next() = true on an unrecognized PDU")
	}

	var unsupported *dicomerr.UnsupportedPDUTypeError
	if !errors.As(it.Err(), &unsupported) {
		t.Fatalf("iterator error = %v, want UnsupportedPDUTypeError", it.Err())
	}
	if a.State() != StateAborted {
		t.Errorf("state = %v, want %v", a.State(), StateAborted)
	}
	if !conn.closed {
		t.Error("transport still open after a protocol error")
	}
	written := conn.writeBuf.Bytes()
	if len(written) == 0 || written[len(written)-10] != pdu.TypeAbort {
		t.Error("no A-ABORT sent before closing")
	}
	if err := a.Echo(); !errors.Is(err, dicomerr.ErrNotEstablished) {
		t.Errorf("Echo() after abort = %v, want ErrNotEstablished", err)
	}
}

func TestMoveSendsCancelOnContextDone(t *testing.T) {
	conn := newMockConn()
	a := newTestAssociation(conn)

	remaining := uint16(3)
	script(t, conn, 5, &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      1,
		CommandDataSetType:             types.NoDataSet,
		Status:                         types.StatusPending,
		NumberOfRemainingSuboperations: &remaining,
	}, nil)
	done := uint16(2)
	script(t, conn, 5, &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      1,
		CommandDataSetType:             types.NoDataSet,
		Status:                         types.StatusCancel,
		NumberOfCompletedSuboperations: &done,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := a.Move(ctx, types.StudyRootQueryRetrieveMove, "RECEIVER", findIdentifier(), nil)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if result.Status != types.StatusCancel {
		t.Errorf("status = 0x%04X, want 0x%04X", result.Status, types.StatusCancel)
	}
	if result.SubOperations.Completed != 2 {
		t.Errorf("completed = %d, want 2", result.SubOperations.Completed)
	}
	if a.State() != StateEstablished {
		t.Errorf("state = %v, want %v", a.State(), StateEstablished)
	}

	// One C-CANCEL went out, after the request and before draining the rest.
	var commands []uint16
	for conn.writeBuf.Len() > 0 {
		p, err := pdu.ReadPDU(conn.writeBuf)
		if err != nil {
			t.Fatalf("reading written PDU: %v", err)
		}
		pdata, ok := p.(*pdu.PDataTF)
		if !ok || len(pdata.Values) == 0 || !pdata.Values[0].Command {
			continue
		}
		msg, err := dimse.DecodeCommand(pdata.Values[0].Data)
		if err != nil {
			t.Fatalf("decoding written command: %v", err)
		}
		commands = append(commands, msg.CommandField)
	}
	if len(commands) != 2 || commands[0] != types.CMoveRQ || commands[1] != types.CCancelRQ {
		t.Errorf("written commands = %04X", commands)
	}
}
