// Package server implements the SCP side: a TCP listener that accepts DICOM
// associations and routes DIMSE requests to registered services. The download
// orchestrator runs one of these as the C-MOVE destination.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pacsops/dicomqr/dimse"
	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/pdu"
	"github.com/pacsops/dicomqr/services"
	"github.com/pacsops/dicomqr/types"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.Logger = logger }
}

// WithReadTimeout sets the per-read deadline for client connections.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.ReadTimeout = timeout }
}

// WithWriteTimeout sets the per-write deadline for client connections.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) { s.WriteTimeout = timeout }
}

// WithAbstractSyntaxes replaces the set of SOP classes the server accepts
// presentation contexts for.
func WithAbstractSyntaxes(uids []string) Option {
	return func(s *Server) { s.AbstractSyntaxes = uids }
}

// Server accepts DICOM associations and serves DIMSE requests.
type Server struct {
	AETitle          string
	Handler          services.Handler
	Logger           *slog.Logger
	ReadTimeout      time.Duration // default 60s
	WriteTimeout     time.Duration // default 60s
	MaxPDULength     uint32        // advertised to peers, default 16384
	AbstractSyntaxes []string      // default verification + storage SOP classes
}

// New builds a Server with the given AE title and handler.
func New(aeTitle string, handler services.Handler, opts ...Option) *Server {
	srv := &Server{AETitle: aeTitle, Handler: handler}
	for _, opt := range opts {
		opt(srv)
	}
	srv.applyDefaults()
	return srv
}

func (s *Server) applyDefaults() {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 60 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 60 * time.Second
	}
	if s.MaxPDULength == 0 {
		s.MaxPDULength = 16384
	}
	if len(s.AbstractSyntaxes) == 0 {
		s.AbstractSyntaxes = append([]string{types.VerificationSOPClass}, types.StorageSOPClasses...)
	}
}

// ListenAndServe listens on address and serves until ctx is done.
func ListenAndServe(ctx context.Context, address, aeTitle string, handler services.Handler, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()

	return New(aeTitle, handler, opts...).Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or the
// listener fails. Each association runs in its own goroutine; Serve returns
// after all of them finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("server: listener is required")
	}
	if s.Handler == nil {
		return errors.New("server: handler is required")
	}
	if s.AETitle == "" {
		return errors.New("server: AE title is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.Logger.Info("listening for associations",
		"address", listener.Addr().String(),
		"ae_title", s.AETitle)

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.Logger.Warn("accept timeout", "error", err)
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

// assocConn is the per-connection transport with deadlines.
type assocConn struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *assocConn) WritePDU(p pdu.PDU) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return &dicomerr.ConnectionError{Op: "set write deadline", Err: err}
	}
	if _, err := c.conn.Write(p.Encode()); err != nil {
		return &dicomerr.ConnectionError{Op: "write pdu", Err: err}
	}
	return nil
}

func (c *assocConn) ReadPDU() (pdu.PDU, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return nil, &dicomerr.ConnectionError{Op: "read pdu", Err: err}
	}
	return pdu.ReadPDU(c.conn)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := s.Logger.With("remote_addr", conn.RemoteAddr().String())
	logger.Info("accepted connection")

	transport := &assocConn{conn: conn, readTimeout: s.ReadTimeout, writeTimeout: s.WriteTimeout}

	contexts, peerMaxPDU, err := s.negotiate(transport)
	if err != nil {
		logger.Warn("association negotiation failed", "error", err)
		return
	}
	logger.Debug("association accepted", "contexts", len(contexts), "peer_max_pdu", peerMaxPDU)

	exchange := dimse.NewExchange(transport, peerMaxPDU, logger)

	for {
		if ctx.Err() != nil {
			transport.WritePDU(&pdu.Abort{Source: pdu.AbortSourceServiceProvider})
			return
		}

		ctxID, req, data, err := exchange.Receive()
		if err != nil {
			switch {
			case errors.Is(err, dimse.ErrReleaseRequested):
				transport.WritePDU(&pdu.ReleaseRP{})
				logger.Info("association released")
			case errors.Is(err, dicomerr.ErrConnectionClosed):
				logger.Info("connection closed by peer")
			default:
				var abort *dicomerr.AbortError
				if errors.As(err, &abort) {
					logger.Warn("association aborted by peer", "error", err)
				} else {
					logger.Warn("association ended", "error", err)
				}
			}
			return
		}

		transferSyntax, ok := contexts[ctxID]
		if !ok {
			logger.Warn("request on unaccepted presentation context", "context_id", ctxID)
			transport.WritePDU(&pdu.Abort{
				Source: pdu.AbortSourceServiceProvider,
				Reason: pdu.AbortReasonInvalidPDUParam,
			})
			return
		}

		rsp, rspData, err := s.Handler.Handle(ctx, req, transferSyntax, data)
		if err != nil {
			logger.Error("service handler failed",
				"command_field", fmt.Sprintf("0x%04X", req.CommandField),
				"error", err)
			rsp = services.ErrorResponse(req, types.StatusUnableToProcess)
			rspData = nil
		}
		if rsp == nil {
			continue
		}
		if err := exchange.Send(ctxID, rsp, rspData); err != nil {
			logger.Warn("sending response failed", "error", err)
			return
		}
	}
}

// negotiate reads the A-ASSOCIATE-RQ and answers with AC, accepting every
// proposed context whose abstract syntax the server serves and that offers a
// transfer syntax the codec speaks. Returns the accepted contexts keyed by ID
// and the peer's maximum PDU length.
func (s *Server) negotiate(transport *assocConn) (map[byte]string, uint32, error) {
	p, err := transport.ReadPDU()
	if err != nil {
		return nil, 0, err
	}
	rq, ok := p.(*pdu.AssociateRQ)
	if !ok {
		transport.WritePDU(&pdu.Abort{
			Source: pdu.AbortSourceServiceProvider,
			Reason: pdu.AbortReasonUnexpectedPDU,
		})
		return nil, 0, &dicomerr.MalformedResponseError{
			Operation: "associate",
			Msg:       fmt.Sprintf("expected A-ASSOCIATE-RQ, got PDU type 0x%02X", p.Type()),
		}
	}

	if rq.CalledAETitle != s.AETitle {
		transport.WritePDU(&pdu.AssociateRJ{
			Result: 0x01, // permanent
			Source: byte(dicomerr.RejectSourceServiceUser),
			Reason: byte(dicomerr.RejectReasonCalledAETNotRecognized),
		})
		return nil, 0, &dicomerr.AssociationRejectedError{
			Result: 0x01,
			Source: dicomerr.RejectSourceServiceUser,
			Reason: dicomerr.RejectReasonCalledAETNotRecognized,
		}
	}

	served := make(map[string]bool, len(s.AbstractSyntaxes))
	for _, uid := range s.AbstractSyntaxes {
		served[uid] = true
	}

	ac := &pdu.AssociateAC{
		CalledAETitle:      rq.CalledAETitle,
		CallingAETitle:     rq.CallingAETitle,
		ApplicationContext: types.ApplicationContextUID,
		MaxPDULength:       s.MaxPDULength,
		ImplementationUID:  types.ImplementationClassUID,
		ImplementationName: types.ImplementationVersionName,
	}

	accepted := make(map[byte]string)
	for _, proposed := range rq.PresentationContexts {
		result := pdu.AcceptedPresentationContext{ID: proposed.ID}
		switch {
		case !served[proposed.AbstractSyntax]:
			result.Result = pdu.ResultAbstractSyntaxReject
		default:
			ts := pickTransferSyntax(proposed.TransferSyntaxes)
			if ts == "" {
				result.Result = pdu.ResultTransferSyntaxReject
			} else {
				result.Result = pdu.ResultAcceptance
				result.TransferSyntax = ts
				accepted[proposed.ID] = ts
			}
		}
		ac.PresentationContexts = append(ac.PresentationContexts, result)
	}

	if err := transport.WritePDU(ac); err != nil {
		return nil, 0, err
	}

	peerMaxPDU := rq.MaxPDULength
	if peerMaxPDU == 0 {
		peerMaxPDU = 16384
	}
	return accepted, peerMaxPDU, nil
}

// pickTransferSyntax selects the first proposed syntax the codec decodes.
func pickTransferSyntax(proposed []string) string {
	for _, ts := range proposed {
		switch ts {
		case types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian, types.ExplicitVRBigEndian:
			return ts
		}
	}
	return ""
}
