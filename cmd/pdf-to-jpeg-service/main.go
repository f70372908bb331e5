// This file orchestrates the pdf-to-jpeg service, initializing and running the NATS
// worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/pdf-to-jpeg-service/internal/pdfrender"
)

// Config represents the overall configuration structure for the pdf-to-jpeg-service.
type Config struct {
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
	Layout LayoutConfig `toml:"layout"`
}

// PathsConfig holds common path configurations.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	PopplerDir  string `toml:"poppler_dir"`
}

// LayoutConfig controls how pages are merged. Zero values fall back to the
// batch tool's defaults.
type LayoutConfig struct {
	HorizontalGap *int `toml:"horizontal_gap"`
	PagesPerImage int  `toml:"pages_per_image"`
	DPI           int  `toml:"dpi"`
	Workers       int  `toml:"workers"`
	JPEGQuality   int  `toml:"jpeg_quality"`
}

// NATSConfig holds NATS-specific configuration for the pdf-to-jpeg-service.
type NATSConfig struct {
	URL                   string `toml:"url"`
	PDFStreamName         string `toml:"pdf_stream_name"`
	PDFConsumerName       string `toml:"pdf_consumer_name"`
	PDFCreatedSubject     string `toml:"pdf_created_subject"`
	PDFObjectStoreBucket  string `toml:"pdf_object_store_bucket"`
	JPEGStreamName        string `toml:"jpeg_stream_name"`
	JPEGCreatedSubject    string `toml:"jpeg_created_subject"`
	JPEGObjectStoreBucket string `toml:"jpeg_object_store_bucket"`
}

// job represents the context for processing a single message.
type job struct {
	msg          jetstream.Msg
	jetStream    jetstream.JetStream
	pdfStore     jetstream.ObjectStore
	jpegStore    jetstream.ObjectStore
	cfg          *Config
	appLogger    *logger.Logger
	event        *events.PDFCreatedEvent
	header       *events.EventHeader
	workDir      string
	localPDFPath string
}

const (
	configURLEnv     = "PDF_TO_JPEG_CONFIG_URL"
	natsFetchTimeout = 5 * time.Second
	ackWait          = 30 * time.Second
)

var errConfigURLMissing = errors.New(configURLEnv + " is not set")

// main is the entry point of the application.
func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runErr := run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("Fatal application error: %v", runErr)
		stop()
		os.Exit(1)
	}

	log.Println("Application shut down gracefully.")
}

// run initializes all components and starts the message processing loop.
func run(ctx context.Context) error {
	cfg, appLogger, setupErr := setupConfigAndLogger()
	if setupErr != nil {
		return setupErr
	}
	defer func() {
		if closeErr := appLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close app logger: %v", closeErr)
		}
	}()

	natsConnection, connErr := nats.Connect(cfg.NATS.URL)
	if connErr != nil {
		return fmt.Errorf("failed to connect to NATS: %w", connErr)
	}
	defer natsConnection.Close()
	appLogger.Info("Connected to NATS server at %s", natsConnection.ConnectedUrl())

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	jsSetupErr := setupJetStream(ctx, jetStream, cfg)
	if jsSetupErr != nil {
		return fmt.Errorf("failed to set up JetStream resources: %w", jsSetupErr)
	}

	consumer, consumerErr := jetStream.Consumer(
		ctx,
		cfg.NATS.PDFStreamName,
		cfg.NATS.PDFConsumerName,
	)
	if consumerErr != nil {
		return fmt.Errorf("failed to get consumer: %w", consumerErr)
	}

	appLogger.Info("Worker is running, listening for jobs on '%s'...", cfg.NATS.PDFCreatedSubject)

	return processMessages(ctx, consumer, jetStream, cfg, appLogger)
}

// setupConfigAndLogger loads configuration and sets up the main application logger.
func setupConfigAndLogger() (*Config, *logger.Logger, error) {
	configURL := os.Getenv(configURLEnv)
	if configURL == "" {
		return nil, nil, errConfigURLMissing
	}

	var cfg Config

	tempLogger, tempLoggerErr := logger.New(os.TempDir(), "pdf-to-jpeg-bootstrap.log")
	if tempLoggerErr != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", tempLoggerErr)
	}
	defer func() {
		if closeErr := tempLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close temp logger: %v", closeErr)
		}
	}()

	loadErr := configurator.LoadFromURL(configURL, &cfg, tempLogger)
	if loadErr != nil {
		return nil, nil, fmt.Errorf(
			"failed to load configuration from URL %s: %w",
			configURL,
			loadErr,
		)
	}
	log.Printf("Configuration loaded from %s", configURL)

	appLogger, loggerErr := logger.New(cfg.Paths.BaseLogsDir, "pdf-to-jpeg-service.log")
	if loggerErr != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", loggerErr)
	}

	return &cfg, appLogger, nil
}

// setupJetStream ensures all required NATS streams and object stores exist.
func setupJetStream(ctx context.Context, jetStream jetstream.JetStream, cfg *Config) error {
	_, streamErr := jetStream.CreateStream(ctx, newStreamConfig(cfg.NATS.PDFStreamName, cfg.NATS.PDFCreatedSubject))
	if streamErr != nil && !errors.Is(streamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create PDF stream: %w", streamErr)
	}

	stream, streamErr := jetStream.Stream(ctx, cfg.NATS.PDFStreamName)
	if streamErr != nil {
		return fmt.Errorf("failed to get PDF stream handle: %w", streamErr)
	}

	_, consumerErr := stream.CreateOrUpdateConsumer(ctx, newConsumerConfig(cfg))
	if consumerErr != nil {
		return fmt.Errorf("failed to create PDF consumer: %w", consumerErr)
	}

	_, jpegStreamErr := jetStream.CreateStream(ctx, newStreamConfig(cfg.NATS.JPEGStreamName, cfg.NATS.JPEGCreatedSubject))
	if jpegStreamErr != nil && !errors.Is(jpegStreamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create JPEG stream: %w", jpegStreamErr)
	}

	for _, bucket := range []string{cfg.NATS.PDFObjectStoreBucket, cfg.NATS.JPEGObjectStoreBucket} {
		_, objStoreErr := jetStream.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:   bucket,
			MaxBytes: -1,
			Storage:  jetstream.FileStorage,
			Replicas: 1,
		})
		if objStoreErr != nil && !errors.Is(objStoreErr, jetstream.ErrBucketExists) {
			return fmt.Errorf("failed to create object store '%s': %w", bucket, objStoreErr)
		}
	}

	return nil
}

func newStreamConfig(name, subject string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              name,
		Subjects:          []string{subject},
		Retention:         jetstream.WorkQueuePolicy,
		MaxConsumers:      -1,
		MaxMsgs:           -1,
		MaxBytes:          -1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: -1,
		MaxMsgSize:        -1,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
	}
}

func newConsumerConfig(cfg *Config) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       cfg.NATS.PDFConsumerName,
		FilterSubject: cfg.NATS.PDFCreatedSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    -1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
		MaxAckPending: -1,
	}
}

// processMessages implements the core worker loop.
func processMessages(
	ctx context.Context,
	consumer jetstream.Consumer,
	jetStream jetstream.JetStream,
	cfg *Config,
	appLogger *logger.Logger,
) error {
	pdfStore, pdfStoreErr := jetStream.ObjectStore(ctx, cfg.NATS.PDFObjectStoreBucket)
	if pdfStoreErr != nil {
		return fmt.Errorf("failed to bind to PDF object store: %w", pdfStoreErr)
	}

	jpegStore, jpegStoreErr := jetStream.ObjectStore(ctx, cfg.NATS.JPEGObjectStoreBucket)
	if jpegStoreErr != nil {
		return fmt.Errorf("failed to bind to JPEG object store: %w", jpegStoreErr)
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("context error in message loop: %w", ctxErr)
		}

		batch, fetchErr := consumer.Fetch(1, jetstream.FetchMaxWait(natsFetchTimeout))
		if fetchErr != nil {
			if !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, nats.ErrTimeout) {
				appLogger.Error("Error fetching messages: %v", fetchErr)
			}

			continue
		}

		for msg := range batch.Messages() {
			handleMessage(ctx, msg, jetStream, pdfStore, jpegStore, cfg, appLogger)
		}

		if batchErr := batch.Error(); batchErr != nil && !errors.Is(batchErr, nats.ErrTimeout) {
			appLogger.Error("Error during message batch processing: %v", batchErr)
		}
	}
}

// handleMessage processes a single message.
func handleMessage(
	ctx context.Context, msg jetstream.Msg, jetStream jetstream.JetStream,
	pdfStore, jpegStore jetstream.ObjectStore, cfg *Config, appLogger *logger.Logger,
) {
	event, unmarshalErr := unmarshalEvent(msg.Data())
	if unmarshalErr != nil {
		appLogger.Error("Failed to create job: %v", unmarshalErr)

		if termErr := msg.Term(); termErr != nil {
			appLogger.Error("Failed to TERM message: %v", termErr)
		}

		return
	}

	current := &job{
		msg:       msg,
		jetStream: jetStream,
		pdfStore:  pdfStore,
		jpegStore: jpegStore,
		cfg:       cfg,
		appLogger: appLogger,
		event:     event,
		header:    &event.Header,
	}
	current.run(ctx)
}

// unmarshalEvent decodes the PDFCreatedEvent carried by a message.
func unmarshalEvent(data []byte) (*events.PDFCreatedEvent, error) {
	var event events.PDFCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal PDFCreatedEvent: %w", err)
	}

	if event.PDFKey == "" {
		return nil, errMissingPDFKey
	}

	return &event, nil
}

// run executes the full lifecycle of a job.
func (j *job) run(ctx context.Context) {
	j.appLogger.Info(
		"Received job for WorkflowID [%s]: processing PDF key '%s'",
		j.header.WorkflowID,
		j.event.PDFKey,
	)
	if progErr := j.msg.InProgress(); progErr != nil {
		j.appLogger.Warn("Failed to send InProgress update: %v", progErr)
	}

	if dirErr := j.setupWorkDir(); dirErr != nil {
		j.nak(dirErr)

		return
	}
	defer j.cleanupWorkDir()

	if downloadErr := j.downloadPDF(ctx); downloadErr != nil {
		j.term(downloadErr)

		return
	}

	outputs, convertErr := j.convertPDF(ctx)
	if convertErr != nil {
		j.nak(convertErr)

		return
	}

	if publishErr := j.publishJPEGs(ctx, outputs); publishErr != nil {
		j.nak(publishErr)

		return
	}

	j.ack()
}

func (j *job) setupWorkDir() error {
	workDir, err := os.MkdirTemp("", fmt.Sprintf("pdf-%s-", j.header.WorkflowID))
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	j.workDir = workDir
	j.localPDFPath = filepath.Join(workDir, filepath.Base(j.event.PDFKey))

	return nil
}

func (j *job) cleanupWorkDir() {
	if err := os.RemoveAll(j.workDir); err != nil {
		j.appLogger.Warn("Failed to remove temp directory '%s': %v", j.workDir, err)
	}
}

func (j *job) downloadPDF(ctx context.Context) error {
	err := j.pdfStore.GetFile(ctx, j.event.PDFKey, j.localPDFPath)
	if err != nil {
		return fmt.Errorf("failed to get PDF '%s' from object store: %w", j.event.PDFKey, err)
	}

	return nil
}

// convertPDF merges the downloaded PDF's pages into JPEGs inside the work dir.
func (j *job) convertPDF(ctx context.Context) ([]string, error) {
	opts := conversionOptions(&j.cfg.Layout, j.cfg.Paths.PopplerDir, j.workDir)
	processor := pdfrender.NewProcessor(&opts, j.appLogger)

	outputs, err := processor.Convert(ctx, j.localPDFPath)
	if err != nil {
		return nil, fmt.Errorf("failed to process PDF: %w", err)
	}

	return outputs, nil
}

// conversionOptions maps the service layout settings onto processor options.
func conversionOptions(layout *LayoutConfig, popplerDir, workDir string) pdfrender.Options {
	opts := pdfrender.DefaultOptions()
	opts.ProgressBarOutput = io.Discard
	opts.InputPath = workDir
	opts.OutputPath = filepath.Join(workDir, "jpg")
	opts.PopplerPath = popplerDir

	if layout.PagesPerImage > 0 {
		opts.PagesPerImage = layout.PagesPerImage
	}

	if layout.HorizontalGap != nil {
		opts.Gap = *layout.HorizontalGap
	}

	if layout.DPI > 0 {
		opts.DPI = layout.DPI
	}

	if layout.Workers > 0 {
		opts.Workers = layout.Workers
	}

	if layout.JPEGQuality > 0 {
		opts.JPEGQuality = layout.JPEGQuality
	}

	return opts
}

// publishJPEGs uploads each merged image and announces it. A failed upload
// fails the job so the message is redelivered.
func (j *job) publishJPEGs(ctx context.Context, outputs []string) error {
	j.appLogger.Info("Job [%s]: Found %d JPEG(s) to publish.", j.header.WorkflowID, len(outputs))

	pagesPerImage := conversionOptions(&j.cfg.Layout, "", j.workDir).PagesPerImage

	for index, localPath := range outputs {
		objectName := jpegObjectName(j.header, localPath)

		if uploadErr := uploadFileToObjectStore(ctx, j.jpegStore, objectName, localPath); uploadErr != nil {
			return fmt.Errorf("failed to upload '%s': %w", objectName, uploadErr)
		}
		j.appLogger.Info("Job [%s]: Uploaded '%s'", j.header.WorkflowID, objectName)

		jpegEvent := newJPEGCreatedEvent(j.header, objectName, index+1, len(outputs), pagesPerImage)

		if publishErr := j.publishEvent(ctx, jpegEvent); publishErr != nil {
			return fmt.Errorf("failed to publish event for '%s': %w", objectName, publishErr)
		}
		j.appLogger.Info("Job [%s]: Published job for '%s'", j.header.WorkflowID, objectName)
	}

	return nil
}

func (j *job) publishEvent(ctx context.Context, jpegEvent *JPEGCreatedEvent) error {
	eventJSON, marshalErr := json.Marshal(jpegEvent)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal JPEGCreatedEvent: %w", marshalErr)
	}

	_, pubErr := j.jetStream.Publish(ctx, j.cfg.NATS.JPEGCreatedSubject, eventJSON)
	if pubErr != nil {
		return fmt.Errorf("failed to publish JPEGCreatedEvent: %w", pubErr)
	}

	return nil
}

func (j *job) ack() {
	if err := j.msg.Ack(); err != nil {
		j.appLogger.Error("Job [%s]: Failed to acknowledge message: %v", j.header.WorkflowID, err)
	} else {
		j.appLogger.Success("Job [%s]: Processing complete. Acknowledged.", j.header.WorkflowID)
	}
}

func (j *job) nak(reason error) {
	j.appLogger.Error("NAK'ing message for job [%s]: %v", j.header.WorkflowID, reason)
	if err := j.msg.Nak(); err != nil {
		j.appLogger.Error("Failed to NAK message: %v", err)
	}
}

func (j *job) term(reason error) {
	j.appLogger.Error("Terminating message for job [%s]: %v", j.header.WorkflowID, reason)
	if err := j.msg.Term(); err != nil {
		j.appLogger.Error("Failed to TERM message: %v", err)
	}
}

func uploadFileToObjectStore(
	ctx context.Context,
	store jetstream.ObjectStore,
	objectName, filePath string,
) error {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open file for upload: %w", openErr)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("Warning: failed to close file '%s': %v", filePath, closeErr)
		}
	}()

	_, putErr := store.Put(ctx, jetstream.ObjectMeta{Name: objectName}, file)
	if putErr != nil {
		return fmt.Errorf("failed to put file in object store: %w", putErr)
	}

	return nil
}
