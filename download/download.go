// Package download retrieves studies, series, and individual instances from a
// remote node into a local directory tree of Part 10 files.
//
// The default retrieve path is C-MOVE: a transient store SCP is started
// before the first request and the remote is told to send there. C-GET keeps
// everything on one association and is selectable for nodes that support it.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/pacsops/dicomqr/client"
	"github.com/pacsops/dicomqr/dicom"
	dcerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/server"
	"github.com/pacsops/dicomqr/services"
	"github.com/pacsops/dicomqr/types"
)

// Method selects the retrieve service.
type Method string

const (
	MethodMove Method = "move"
	MethodGet  Method = "get"
)

// Config describes one remote node and the local landing zone.
type Config struct {
	// Address is the remote node's host:port.
	Address string
	// CalledAETitle is the remote node's AE title.
	CalledAETitle string
	// CallingAETitle identifies us to the remote.
	CallingAETitle string
	// MoveDestination is the AE title the remote directs C-STORE
	// sub-operations to. Defaults to CallingAETitle; the remote must have it
	// registered against our listen address.
	MoveDestination string
	// ListenAddress binds the transient store SCP for C-MOVE retrieves.
	ListenAddress string
	// Root is the directory instances are written under, laid out as
	// {root}/{StudyUID}/{SeriesUID}/{SOPInstanceUID}.dcm.
	Root string
	// Method defaults to MethodMove.
	Method Method
	// OnProgress, when set, observes remote sub-operation counters.
	OnProgress func(client.SubOperations)

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MoveDestination == "" {
		c.MoveDestination = c.CallingAETitle
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":11113"
	}
	if c.Root == "" {
		c.Root = "downloads"
	}
	if c.Method == "" {
		c.Method = MethodMove
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result reports the outcome of one batch of retrieves.
type Result struct {
	// Paths lists the files written, one per stored instance.
	Paths []string
	// Failed lists per-instance failures.
	Failed []dcerr.InstanceFailure
}

// Downloader runs retrieves against one configured node.
type Downloader struct {
	cfg    Config
	logger *slog.Logger
}

// New builds a Downloader, filling config defaults.
func New(cfg Config) *Downloader {
	cfg.applyDefaults()
	return &Downloader{cfg: cfg, logger: cfg.Logger}
}

// Studies retrieves every instance of each study UID.
func (d *Downloader) Studies(ctx context.Context, studyUIDs []string) (*Result, error) {
	return d.run(ctx, types.QueryLevelStudy, dicom.TagStudyInstanceUID, studyUIDs)
}

// Series retrieves every instance of each series UID.
func (d *Downloader) Series(ctx context.Context, seriesUIDs []string) (*Result, error) {
	return d.run(ctx, types.QueryLevelSeries, dicom.TagSeriesInstanceUID, seriesUIDs)
}

// Instances retrieves individual SOP instances by UID.
func (d *Downloader) Instances(ctx context.Context, sopInstanceUIDs []string) (*Result, error) {
	return d.run(ctx, types.QueryLevelImage, dicom.TagSOPInstanceUID, sopInstanceUIDs)
}

// tracker accumulates per-instance outcomes. The store SCP serves inbound
// associations concurrently, so every mutation takes the lock.
type tracker struct {
	mu        sync.Mutex
	paths     []string
	failed    []dcerr.InstanceFailure
	completed int
}

func (t *tracker) complete(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths = append(t.paths, path)
	t.completed++
}

func (t *tracker) fail(sopInstanceUID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = append(t.failed, dcerr.InstanceFailure{SOPInstanceUID: sopInstanceUID, Err: err})
}

func (t *tracker) failureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failed)
}

func (t *tracker) result() (*Result, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Result{Paths: t.paths, Failed: t.failed}, t.completed
}

func (d *Downloader) run(ctx context.Context, level types.QueryLevel, uidTag dicom.Tag, uids []string) (*Result, error) {
	if len(uids) == 0 {
		return &Result{}, nil
	}

	tr := &tracker{}
	store := d.storeFunc(tr)

	var retrieve func(*client.Association, string) (client.SubOperations, error)
	cfg := client.Config{
		CallingAETitle: d.cfg.CallingAETitle,
		CalledAETitle:  d.cfg.CalledAETitle,
		Logger:         d.logger,
	}

	switch d.cfg.Method {
	case MethodMove:
		stop, err := d.startStoreSCP(ctx, store)
		if err != nil {
			return nil, err
		}
		defer stop()

		cfg.RequestedContexts = []string{level.MoveSOPClass()}
		retrieve = func(assoc *client.Association, uid string) (client.SubOperations, error) {
			res, err := assoc.Move(ctx, level.MoveSOPClass(), d.cfg.MoveDestination, retrieveIdentifier(level, uidTag, uid), d.cfg.OnProgress)
			if err != nil {
				return client.SubOperations{}, err
			}
			return res.SubOperations, nil
		}

	case MethodGet:
		cfg.RequestedContexts = append([]string{level.GetSOPClass()}, types.StorageSOPClasses...)
		retrieve = func(assoc *client.Association, uid string) (client.SubOperations, error) {
			res, err := assoc.Get(ctx, level.GetSOPClass(), retrieveIdentifier(level, uidTag, uid), client.StoreHandler(store), d.cfg.OnProgress)
			if err != nil {
				return client.SubOperations{}, err
			}
			return res.SubOperations, nil
		}

	default:
		return nil, fmt.Errorf("download: unknown method %q", d.cfg.Method)
	}

	assoc, err := client.Open(d.cfg.Address, cfg)
	if err != nil {
		return nil, err
	}
	defer assoc.Release()

	for _, uid := range uids {
		if ctx.Err() != nil {
			tr.fail(uid, dcerr.ErrCanceled)
			continue
		}
		before := tr.failureCount()
		subOps, err := retrieve(assoc, uid)
		if err != nil {
			d.logger.Warn("retrieve failed", "level", string(level), "uid", uid, "error", err)
			tr.fail(uid, err)
			continue
		}
		// Failures our store sink already recorded also appear in the
		// remote's counter; report only the excess the remote saw alone.
		if remote := int(subOps.Failed) - (tr.failureCount() - before); remote > 0 {
			tr.fail(uid, fmt.Errorf("download: remote reported %d failed sub-operations", remote))
		}
	}

	result, completed := tr.result()
	if len(result.Failed) == 0 {
		return result, nil
	}
	if completed == 0 {
		return result, fmt.Errorf("download: all retrieves failed: %w", result.Failed[0].Err)
	}
	return result, &dcerr.PartialDownloadError{Completed: completed, Failed: result.Failed}
}

// startStoreSCP brings up the transient store SCP for C-MOVE and returns a
// stop function that waits for it to wind down.
func (d *Downloader) startStoreSCP(ctx context.Context, store services.StoreSink) (func(), error) {
	listener, err := net.Listen("tcp", d.cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("download: listen %s: %w", d.cfg.ListenAddress, err)
	}

	handlers := services.NewRegistry(d.logger)
	handlers.Register(types.CEchoRQ, services.NewEchoService(d.logger))
	handlers.Register(types.CStoreRQ, services.NewStoreService(store, d.logger))

	srv := server.New(d.cfg.MoveDestination, handlers, server.WithLogger(d.logger))
	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(srvCtx, listener); err != nil && srvCtx.Err() == nil {
			d.logger.Error("store SCP stopped", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// storeFunc writes one received instance under the download root.
func (d *Downloader) storeFunc(tr *tracker) services.StoreSink {
	return func(sopClassUID, sopInstanceUID, transferSyntax string, data []byte) uint16 {
		path, err := WriteInstance(d.cfg.Root, transferSyntax, data)
		if err != nil {
			d.logger.Warn("store failed", "sop_instance_uid", sopInstanceUID, "error", err)
			tr.fail(sopInstanceUID, err)
			return types.StatusUnableToProcess
		}
		tr.complete(path)
		return types.StatusSuccess
	}
}

// WriteInstance decodes a received dataset and lands it as a Part 10 file
// under root at {StudyUID}/{SeriesUID}/{SOPInstanceUID}.dcm. Returns the
// written path.
func WriteInstance(root, transferSyntax string, data []byte) (string, error) {
	ds, err := dicom.Decode(data, transferSyntax)
	if err != nil {
		return "", fmt.Errorf("decode instance: %w", err)
	}

	studyUID := orUnknown(ds.GetString(dicom.TagStudyInstanceUID))
	seriesUID := orUnknown(ds.GetString(dicom.TagSeriesInstanceUID))
	sopUID := ds.GetString(dicom.TagSOPInstanceUID)
	if sopUID == "" {
		return "", fmt.Errorf("instance has no SOP Instance UID")
	}

	dir := filepath.Join(root, studyUID, seriesUID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create series directory: %w", err)
	}

	path := filepath.Join(dir, sopUID+".dcm")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create instance file: %w", err)
	}
	if err := dicom.WritePart10(f, ds, transferSyntax); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write instance file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close instance file: %w", err)
	}
	return path, nil
}

func retrieveIdentifier(level types.QueryLevel, uidTag dicom.Tag, uid string) *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.AddString(dicom.TagQueryRetrieveLevel, string(level))
	ds.AddString(uidTag, uid)
	return ds
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
