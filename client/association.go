// Package client implements the SCU side of a DICOM association: negotiation,
// the DIMSE request flows, and orderly teardown.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pacsops/dicomqr/dimse"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/pdu"
	"github.com/pacsops/dicomqr/types"
)

// State tracks the association lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateRequesting
	StateEstablished
	StateReleasing
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRequesting:
		return "requesting"
	case StateEstablished:
		return "established"
	case StateReleasing:
		return "releasing"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PresentationContext is the negotiated form of one proposed context.
type PresentationContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	Accepted       bool
}

// Config holds association parameters. Zero values take defaults.
type Config struct {
	CallingAETitle            string
	CalledAETitle             string
	MaxPDULength              uint32
	ConnectTimeout            time.Duration // default 30s
	ReadTimeout               time.Duration // default 60s
	WriteTimeout              time.Duration // default 60s
	Logger                    *slog.Logger
	PreferredTransferSyntaxes []string // proposal order matters; default explicit then implicit VR LE
	RequestedContexts         []string // abstract syntaxes to propose; default verification + study root Q/R
}

func (c *Config) applyDefaults() {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = 16384
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if len(c.PreferredTransferSyntaxes) == 0 {
		c.PreferredTransferSyntaxes = []string{
			types.ExplicitVRLittleEndian,
			types.ImplicitVRLittleEndian,
		}
	}
	if len(c.RequestedContexts) == 0 {
		c.RequestedContexts = []string{
			types.VerificationSOPClass,
			types.StudyRootQueryRetrieveFind,
			types.StudyRootQueryRetrieveMove,
			types.StudyRootQueryRetrieveGet,
			types.PatientRootQueryRetrieveFind,
		}
	}
}

// Association is a client-side DICOM association. Request methods run one
// DIMSE exchange at a time; the association is not safe for concurrent
// requests.
type Association struct {
	conn     net.Conn
	cfg      Config
	logger   *slog.Logger
	exchange *dimse.Exchange

	mu    sync.Mutex
	state State

	contexts      map[byte]*PresentationContext
	peerMaxPDU    uint32
	nextMessageID uint16
}

// Open dials the peer and negotiates an association. On rejection the
// transport is closed and the returned error unwraps to
// AssociationRejectedError; on negotiation timeout, to TimeoutError.
func Open(address string, cfg Config) (*Association, error) {
	cfg.applyDefaults()

	a := &Association{
		cfg:      cfg,
		logger:   cfg.Logger,
		state:    StateConnecting,
		contexts: make(map[byte]*PresentationContext),
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		a.setState(StateClosed)
		return nil, dicomerr.NewConnectionError("connect", err)
	}
	a.conn = conn

	if err := a.negotiate(); err != nil {
		conn.Close()
		a.setState(StateClosed)
		return nil, err
	}

	a.setState(StateEstablished)
	a.exchange = dimse.NewExchange(a, a.peerMaxPDU, a.logger)
	a.logger.Info("association established",
		"remote_addr", address,
		"calling_ae", cfg.CallingAETitle,
		"called_ae", cfg.CalledAETitle,
		"peer_max_pdu", a.peerMaxPDU,
		"accepted_contexts", a.acceptedCount())
	return a, nil
}

// negotiate sends A-ASSOCIATE-RQ and applies the peer's AC or RJ.
func (a *Association) negotiate() error {
	a.setState(StateRequesting)

	rq := &pdu.AssociateRQ{
		CalledAETitle:      a.cfg.CalledAETitle,
		CallingAETitle:     a.cfg.CallingAETitle,
		ApplicationContext: types.ApplicationContextUID,
		MaxPDULength:       a.cfg.MaxPDULength,
		ImplementationUID:  types.ImplementationClassUID,
		ImplementationName: types.ImplementationVersionName,
	}
	for i, abstract := range a.cfg.RequestedContexts {
		id := byte(2*i + 1)
		rq.PresentationContexts = append(rq.PresentationContexts, pdu.ProposedPresentationContext{
			ID:               id,
			AbstractSyntax:   abstract,
			TransferSyntaxes: a.cfg.PreferredTransferSyntaxes,
		})
		a.contexts[id] = &PresentationContext{ID: id, AbstractSyntax: abstract}
	}

	if err := a.WritePDU(rq); err != nil {
		return err
	}

	p, err := a.readPDU("associate")
	if err != nil {
		return err
	}

	switch p := p.(type) {
	case *pdu.AssociateAC:
		return a.applyAccept(p)
	case *pdu.AssociateRJ:
		return p.Rejected()
	case *pdu.Abort:
		return &dicomerr.AbortError{Source: p.Source, Reason: p.Reason}
	default:
		return &dicomerr.MalformedResponseError{
			Operation: "associate",
			Msg:       fmt.Sprintf("unexpected PDU type 0x%02X", p.Type()),
		}
	}
}

// applyAccept records the peer's per-context results. A context the peer
// accepted with a transfer syntax we never proposed counts as rejected.
func (a *Association) applyAccept(ac *pdu.AssociateAC) error {
	proposed := make(map[string]bool, len(a.cfg.PreferredTransferSyntaxes))
	for _, ts := range a.cfg.PreferredTransferSyntaxes {
		proposed[ts] = true
	}

	for _, result := range ac.PresentationContexts {
		pc, ok := a.contexts[result.ID]
		if !ok {
			a.logger.Warn("peer answered unproposed presentation context", "context_id", result.ID)
			continue
		}
		pc.Accepted = result.Result == pdu.ResultAcceptance && proposed[result.TransferSyntax]
		if pc.Accepted {
			pc.TransferSyntax = result.TransferSyntax
		}
		a.logger.Debug("presentation context negotiated",
			"context_id", result.ID,
			"abstract_syntax", pc.AbstractSyntax,
			"result", result.Result,
			"accepted", pc.Accepted,
			"transfer_syntax", pc.TransferSyntax)
	}

	if a.acceptedCount() == 0 {
		return dicomerr.ErrNoPresentationCtx
	}

	a.peerMaxPDU = ac.MaxPDULength
	if a.peerMaxPDU == 0 {
		a.peerMaxPDU = 16384
	}
	return nil
}

func (a *Association) acceptedCount() int {
	n := 0
	for _, pc := range a.contexts {
		if pc.Accepted {
			n++
		}
	}
	return n
}

// ContextFor returns the accepted presentation context for an abstract
// syntax.
func (a *Association) ContextFor(abstractSyntax string) (*PresentationContext, error) {
	for _, pc := range a.contexts {
		if pc.Accepted && pc.AbstractSyntax == abstractSyntax {
			return pc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", dicomerr.ErrNoPresentationCtx, abstractSyntax)
}

// contextByID resolves an accepted context by its negotiated ID.
func (a *Association) contextByID(id byte) (*PresentationContext, bool) {
	pc, ok := a.contexts[id]
	if !ok || !pc.Accepted {
		return nil, false
	}
	return pc, true
}

// State returns the current lifecycle state.
func (a *Association) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Association) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// nextID hands out message IDs, which must be non-zero.
func (a *Association) nextID() uint16 {
	a.nextMessageID++
	if a.nextMessageID == 0 {
		a.nextMessageID = 1
	}
	return a.nextMessageID
}

// requireEstablished gates the request methods.
func (a *Association) requireEstablished() error {
	if a.State() != StateEstablished {
		return dicomerr.ErrNotEstablished
	}
	return nil
}

// WritePDU implements dimse.Transport with the configured write deadline.
func (a *Association) WritePDU(p pdu.PDU) error {
	if err := a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout)); err != nil {
		return dicomerr.NewConnectionError("set write deadline", err)
	}
	if _, err := a.conn.Write(p.Encode()); err != nil {
		return dicomerr.NewConnectionError("write pdu", err)
	}
	return nil
}

// ReadPDU implements dimse.Transport with the configured read deadline.
func (a *Association) ReadPDU() (pdu.PDU, error) {
	return a.readPDU("read pdu")
}

func (a *Association) readPDU(op string) (pdu.PDU, error) {
	if err := a.conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout)); err != nil {
		return nil, dicomerr.NewConnectionError(op, err)
	}
	p, err := pdu.ReadPDU(a.conn)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, dicomerr.NewTimeoutError(op, a.cfg.ReadTimeout.String())
		}
		if os.IsTimeout(err) {
			return nil, dicomerr.NewTimeoutError(op, a.cfg.ReadTimeout.String())
		}
		if errors.Is(err, dicomerr.ErrConnectionClosed) {
			return nil, err
		}
		var (
			badPDU      *dicomerr.MalformedPDUError
			unsupported *dicomerr.UnsupportedPDUTypeError
		)
		if errors.As(err, &badPDU) || errors.As(err, &unsupported) {
			return nil, err
		}
		return nil, dicomerr.NewConnectionError(op, err)
	}
	return p, nil
}

// receive reads the next DIMSE message of an exchange. Codec-level and
// timeout errors are fatal to the whole association, not just the exchange:
// the association is aborted before the error is returned.
func (a *Association) receive() (byte, *types.Message, []byte, error) {
	contextID, msg, data, err := a.exchange.Receive()
	if err != nil {
		a.failExchange(err)
	}
	return contextID, msg, data, err
}

// failExchange tears the association down when err is protocol-fatal.
func (a *Association) failExchange(err error) {
	var abortErr *dicomerr.AbortError
	if errors.As(err, &abortErr) {
		// The peer aborted; nothing left to send.
		a.conn.Close()
		a.setState(StateAborted)
		return
	}
	if errors.Is(err, dicomerr.ErrConnectionClosed) {
		a.conn.Close()
		a.setState(StateClosed)
		return
	}

	var (
		badPDU      *dicomerr.MalformedPDUError
		unsupported *dicomerr.UnsupportedPDUTypeError
		badElement  *dicomerr.MalformedElementError
		badResponse *dicomerr.MalformedResponseError
		timeout     *dicomerr.TimeoutError
		connErr     *dicomerr.ConnectionError
	)
	switch {
	case errors.As(err, &badPDU):
		a.Abort(pdu.AbortReasonInvalidPDUParam)
	case errors.As(err, &unsupported):
		a.Abort(pdu.AbortReasonUnrecognizedPDU)
	case errors.As(err, &badElement), errors.As(err, &badResponse):
		a.Abort(pdu.AbortReasonUnexpectedPDU)
	case errors.As(err, &timeout):
		a.Abort(pdu.AbortReasonNotSpecified)
	case errors.As(err, &connErr):
		// The transport already failed; just close our side.
		a.conn.Close()
		a.setState(StateAborted)
	}
}

// Release performs the orderly A-RELEASE handshake and closes the transport.
// When the peer does not answer within the read timeout the release degrades
// to an abort.
func (a *Association) Release() error {
	if a.State() != StateEstablished {
		return dicomerr.ErrNotEstablished
	}
	a.setState(StateReleasing)

	if err := a.WritePDU(&pdu.ReleaseRQ{}); err != nil {
		a.Abort(pdu.AbortReasonNotSpecified)
		return err
	}

	for {
		p, err := a.readPDU("release")
		if err != nil {
			a.Abort(pdu.AbortReasonNotSpecified)
			return err
		}
		switch p.(type) {
		case *pdu.ReleaseRP:
			a.setState(StateClosed)
			a.logger.Debug("association released")
			return a.conn.Close()
		case *pdu.PDataTF:
			// Late responses from an exchange the peer had in flight.
			continue
		case *pdu.Abort:
			a.setState(StateAborted)
			return a.conn.Close()
		default:
			a.Abort(pdu.AbortReasonUnexpectedPDU)
			return &dicomerr.MalformedResponseError{
				Operation: "release",
				Msg:       fmt.Sprintf("unexpected PDU type 0x%02X", p.Type()),
			}
		}
	}
}

// Abort sends a best-effort A-ABORT and closes the transport. It never
// fails; the association is unusable afterwards.
func (a *Association) Abort(reason byte) {
	if a.State() == StateClosed || a.State() == StateAborted {
		return
	}
	a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	a.conn.Write((&pdu.Abort{Source: pdu.AbortSourceServiceUser, Reason: reason}).Encode())
	a.conn.Close()
	a.setState(StateAborted)
	a.logger.Debug("association aborted", "reason", reason)
}
