package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// ANSI color codes for log levels
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

// Options configures NewLogger.
type Options struct {
	ServiceName  string
	Level        slog.Leveler
	BufferSize   int
	LogDir       string    // empty disables the file handler
	KafkaBrokers []string  // empty disables the Kafka handler
	KafkaTopic   string
	Stdout       io.Writer // defaults to os.Stdout
}

// attrState holds attributes and the group prefix added via WithAttrs/WithGroup.
type attrState struct {
	attrs  []slog.Attr
	prefix string
}

func (s attrState) withAttrs(attrs []slog.Attr) attrState {
	out := attrState{prefix: s.prefix, attrs: make([]slog.Attr, 0, len(s.attrs)+len(attrs))}
	out.attrs = append(out.attrs, s.attrs...)
	for _, a := range attrs {
		out.attrs = append(out.attrs, slog.Attr{Key: s.prefix + a.Key, Value: a.Value})
	}
	return out
}

func (s attrState) withGroup(name string) attrState {
	if name == "" {
		return s
	}
	return attrState{attrs: s.attrs, prefix: s.prefix + name + "."}
}

// collect returns the handler attrs followed by the record attrs.
func (s attrState) collect(record slog.Record) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(s.attrs)+record.NumAttrs())
	attrs = append(attrs, s.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, slog.Attr{Key: s.prefix + a.Key, Value: a.Value})
		return true
	})
	return attrs
}

// formatAttrs renders attrs as " key=value" pairs.
func formatAttrs(attrs []slog.Attr) string {
	var b strings.Builder
	for _, a := range attrs {
		if a.Equal(slog.Attr{}) {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve())
	}
	return b.String()
}

// attrValue converts a value into something encoding/json renders usefully.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func levelEnabled(leveler slog.Leveler, level slog.Level) bool {
	if leveler == nil {
		return level >= slog.LevelInfo
	}
	return level >= leveler.Level()
}

// logEntry is a record with its attributes already resolved against the handler state.
type logEntry struct {
	record slog.Record
	attrs  []slog.Attr
}

// kafkaCore is shared by a KafkaHandler and all handlers derived from it.
type kafkaCore struct {
	producer  sarama.AsyncProducer
	topic     string
	service   string
	logChan   chan logEntry
	wg        sync.WaitGroup
	quitChan  chan struct{}
	closeOnce sync.Once
}

// KafkaHandler sends logs to Kafka topic asynchronously.
type KafkaHandler struct {
	core  *kafkaCore
	level slog.Leveler
	state attrState
}

// NewKafkaHandler initializes a new KafkaHandler.
func NewKafkaHandler(brokers []string, topic, serviceName string, bufferSize int, level slog.Leveler) (*KafkaHandler, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create async producer: %w", err)
	}
	return newKafkaHandler(producer, topic, serviceName, bufferSize, level), nil
}

func newKafkaHandler(producer sarama.AsyncProducer, topic, serviceName string, bufferSize int, level slog.Leveler) *KafkaHandler {
	core := &kafkaCore{
		producer: producer,
		topic:    topic,
		service:  serviceName,
		logChan:  make(chan logEntry, bufferSize),
		quitChan: make(chan struct{}),
	}

	core.wg.Add(1)
	go core.processLogs()

	core.wg.Add(1)
	go core.handleProducerErrors()

	return &KafkaHandler{core: core, level: level}
}

// processLogs publishes queued entries until Close, then drains what is left.
func (k *kafkaCore) processLogs() {
	defer k.wg.Done()
	for {
		select {
		case entry := <-k.logChan:
			k.publish(entry)
		case <-k.quitChan:
			for {
				select {
				case entry := <-k.logChan:
					k.publish(entry)
				default:
					return
				}
			}
		}
	}
}

func (k *kafkaCore) publish(entry logEntry) {
	fields := make(map[string]any, len(entry.attrs))
	for _, a := range entry.attrs {
		fields[a.Key] = attrValue(a.Value)
	}
	payload, err := json.Marshal(map[string]any{
		"time":    entry.record.Time.Format(time.RFC3339),
		"level":   entry.record.Level.String(),
		"msg":     entry.record.Message,
		"service": k.service,
		"attrs":   fields,
	})
	if err != nil {
		fmt.Printf("failed to marshal log entry: %v\n", err)
		return
	}

	k.producer.Input() <- &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(k.service),
		Value: sarama.ByteEncoder(payload),
	}
}

// handleProducerErrors processes producer errors.
func (k *kafkaCore) handleProducerErrors() {
	defer k.wg.Done()
	for {
		select {
		case err, ok := <-k.producer.Errors():
			if !ok {
				return
			}
			fmt.Printf("failed to write message to kafka: %v\n", err)
		case <-k.quitChan:
			return
		}
	}
}

// Enabled checks if the level is enabled.
func (k *KafkaHandler) Enabled(_ context.Context, level slog.Level) bool {
	return levelEnabled(k.level, level)
}

// Handle sends logs into a channel for asynchronous processing.
func (k *KafkaHandler) Handle(_ context.Context, record slog.Record) error {
	select {
	case k.core.logChan <- logEntry{record: record, attrs: k.state.collect(record)}:
	default:
		fmt.Println("log channel is full, dropping log message")
	}
	return nil
}

// WithAttrs adds attributes to the handler.
func (k *KafkaHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &KafkaHandler{core: k.core, level: k.level, state: k.state.withAttrs(attrs)}
}

// WithGroup adds a group to the handler.
func (k *KafkaHandler) WithGroup(name string) slog.Handler {
	return &KafkaHandler{core: k.core, level: k.level, state: k.state.withGroup(name)}
}

// Close flushes queued logs and shuts down the producer.
func (k *KafkaHandler) Close() error {
	var err error
	k.core.closeOnce.Do(func() {
		close(k.core.quitChan)
		k.core.wg.Wait()
		if cerr := k.core.producer.Close(); cerr != nil {
			err = fmt.Errorf("failed to close producer: %w", cerr)
		}
	})
	return err
}

// fileCore is shared by a FileHandler and all handlers derived from it.
type fileCore struct {
	file      *os.File
	logChan   chan logEntry
	wg        sync.WaitGroup
	quitChan  chan struct{}
	closeOnce sync.Once
}

// FileHandler saves logs to {dir}/{service}/app.log asynchronously.
type FileHandler struct {
	core  *fileCore
	level slog.Leveler
	state attrState
}

// NewFileHandler initializes a new FileHandler.
func NewFileHandler(dir, serviceName string, bufferSize int, level slog.Leveler) (*FileHandler, error) {
	logDir := filepath.Join(dir, serviceName)
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filepath.Join(logDir, "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	core := &fileCore{
		file:     file,
		logChan:  make(chan logEntry, bufferSize),
		quitChan: make(chan struct{}),
	}
	core.wg.Add(1)
	go core.processLogs()

	return &FileHandler{core: core, level: level}, nil
}

// processLogs writes queued entries until Close, then drains what is left.
func (f *fileCore) processLogs() {
	defer f.wg.Done()
	for {
		select {
		case entry := <-f.logChan:
			f.write(entry)
		case <-f.quitChan:
			for {
				select {
				case entry := <-f.logChan:
					f.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (f *fileCore) write(entry logEntry) {
	line := fmt.Sprintf("[%s] - %s - %s%s\n",
		entry.record.Level.String(),
		entry.record.Time.Format(time.RFC3339),
		entry.record.Message,
		formatAttrs(entry.attrs),
	)
	if _, err := f.file.WriteString(line); err != nil {
		fmt.Printf("failed to write log file: %v\n", err)
	}
}

// Enabled checks if the level is enabled.
func (f *FileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return levelEnabled(f.level, level)
}

// Handle sends logs into a channel for asynchronous processing.
func (f *FileHandler) Handle(_ context.Context, record slog.Record) error {
	select {
	case f.core.logChan <- logEntry{record: record, attrs: f.state.collect(record)}:
	default:
		fmt.Println("file log channel is full, dropping log message")
	}
	return nil
}

// WithAttrs adds attributes to the handler.
func (f *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FileHandler{core: f.core, level: f.level, state: f.state.withAttrs(attrs)}
}

// WithGroup adds a group to the handler.
func (f *FileHandler) WithGroup(name string) slog.Handler {
	return &FileHandler{core: f.core, level: f.level, state: f.state.withGroup(name)}
}

// Close flushes queued logs and closes the file.
func (f *FileHandler) Close() error {
	var err error
	f.core.closeOnce.Do(func() {
		close(f.core.quitChan)
		f.core.wg.Wait()
		err = f.core.file.Close()
	})
	return err
}

// StdoutHandler writes colored lines synchronously.
type StdoutHandler struct {
	mu     *sync.Mutex
	writer io.Writer
	level  slog.Leveler
	state  attrState
}

// NewStdoutHandler initializes a new StdoutHandler. A nil writer means os.Stdout.
func NewStdoutHandler(writer io.Writer, level slog.Leveler) *StdoutHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &StdoutHandler{mu: &sync.Mutex{}, writer: writer, level: level}
}

// Enabled checks if the level is enabled.
func (s *StdoutHandler) Enabled(_ context.Context, level slog.Level) bool {
	return levelEnabled(s.level, level)
}

// Handle outputs the record with a level color.
func (s *StdoutHandler) Handle(_ context.Context, record slog.Record) error {
	var color string
	switch {
	case record.Level >= slog.LevelError:
		color = ColorRed
	case record.Level >= slog.LevelWarn:
		color = ColorYellow
	case record.Level >= slog.LevelInfo:
		color = ColorGreen
	default:
		color = ColorBlue
	}
	line := fmt.Sprintf("%s[%s]%s - %s - %s%s\n",
		color,
		record.Level.String(),
		ColorReset,
		record.Time.Format("2006-01-02 15:04:05"),
		record.Message,
		formatAttrs(s.state.collect(record)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.writer, line)
	return err
}

// WithAttrs adds attributes to the handler.
func (s *StdoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &StdoutHandler{mu: s.mu, writer: s.writer, level: s.level, state: s.state.withAttrs(attrs)}
}

// WithGroup adds a group to the handler.
func (s *StdoutHandler) WithGroup(name string) slog.Handler {
	return &StdoutHandler{mu: s.mu, writer: s.writer, level: s.level, state: s.state.withGroup(name)}
}

// Close is a no-op for synchronous handler.
func (s *StdoutHandler) Close() error {
	return nil
}

// MultiHandler combines multiple handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler initializes a new MultiHandler.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{
		handlers: handlers,
	}
}

// Enabled checks if the level is enabled for any handler.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes the record to every handler that accepts its level.
func (m *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs adds attributes to all handlers.
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return NewMultiHandler(handlers...)
}

// WithGroup adds a group to all handlers.
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return NewMultiHandler(handlers...)
}

// CloseAll closes all handlers that implement the Close method.
func (m *MultiHandler) CloseAll() {
	for _, h := range m.handlers {
		if closer, ok := h.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				fmt.Printf("failed to close log handler: %v\n", err)
			}
		}
	}
}

// NewLogger builds the combined logger: stdout always, file and Kafka when configured.
func NewLogger(opts Options) (*slog.Logger, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}

	handlers := []slog.Handler{NewStdoutHandler(opts.Stdout, opts.Level)}

	if opts.LogDir != "" {
		fileHandler, err := NewFileHandler(opts.LogDir, opts.ServiceName, opts.BufferSize, opts.Level)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, fileHandler)
	}

	if len(opts.KafkaBrokers) > 0 {
		kafkaHandler, err := NewKafkaHandler(opts.KafkaBrokers, opts.KafkaTopic, opts.ServiceName, opts.BufferSize, opts.Level)
		if err != nil {
			NewMultiHandler(handlers...).CloseAll()
			return nil, err
		}
		handlers = append(handlers, kafkaHandler)
	}

	return slog.New(NewMultiHandler(handlers...)), nil
}

// Close closes the handlers of a logger built by NewLogger.
func Close(logger *slog.Logger) {
	if multiHandler, ok := logger.Handler().(*MultiHandler); ok {
		multiHandler.CloseAll()
	}
}
