// Package s3remote implements storage.RemoteStore on top of an S3 bucket.
//
// Layout under the configured prefix:
//
//	changes/<entityType>/<seq:020d>.json   change log
//	entities/<entityType>/<entityID>.json  latest record per entity
//	devices/<deviceID>.json                device directory
//
// The change log is ordered by a per-type receive sequence. A writer claims the next
// sequence number with a conditional put (If-None-Match: *) and only after it has seen
// the previous one, so the log has no gaps and the ChangesSince cursor does not depend
// on any device clock. The bucket must support conditional writes.
package s3remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/config"
	"github.com/iudanet/handsync/internal/crypto"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
)

//go:generate moq -out api_mock.go . API

// API подмножество методов *s3.Client, используемое хранилищем
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// maxAppendAttempts ограничивает число попыток занять номер в журнале при гонке устройств
const maxAppendAttempts = 32

var (
	// errSeqTaken номер в журнале уже занят другим устройством
	errSeqTaken = errors.New("change log sequence taken")
	// errSeqBusy другое устройство пишет тот же номер прямо сейчас
	errSeqBusy = errors.New("change log sequence busy")
)

// Store удаленное хранилище в S3 бакете
type Store struct {
	api    API
	sealer *crypto.Sealer
	logger *slog.Logger
	bucket string
	prefix string

	mu   sync.Mutex
	tail map[string]int64 // последний известный номер журнала по типу
}

// Option настраивает Store
type Option func(*Store)

// WithSealer включает шифрование payload
func WithSealer(s *crypto.Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// New creates a store over an existing S3 API client.
func New(api API, bucket, prefix string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	s := &Store{
		api:    api,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		tail:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromConfig builds the AWS client from configuration. Static credentials are
// used when given, otherwise the default AWS credential chain applies.
func NewFromConfig(ctx context.Context, cfg config.S3Config, logger *slog.Logger, opts ...Option) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, logger, opts...)
}

var (
	_ storage.RemoteStore     = (*Store)(nil)
	_ storage.DeviceDirectory = (*Store)(nil)
)

// Create сохраняет запись создания
func (s *Store) Create(ctx context.Context, rec *models.ChangeRecord) error {
	return s.push(ctx, rec)
}

// Update сохраняет запись обновления
func (s *Store) Update(ctx context.Context, rec *models.ChangeRecord) error {
	return s.push(ctx, rec)
}

// Delete сохраняет запись удаления
func (s *Store) Delete(ctx context.Context, rec *models.ChangeRecord) error {
	return s.push(ctx, rec)
}

func (s *Store) push(ctx context.Context, rec *models.ChangeRecord) error {
	if err := rec.Verify(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrRejected, err)
	}

	out := rec.Clone()
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(out.Payload)
		if err != nil {
			return err
		}
		out.Payload = sealed
	}

	if _, err := s.appendChange(ctx, rec.EntityType, out); err != nil {
		return err
	}

	// Состояние сущности следует правилу newest, журнал хранит все записи
	current, err := s.readEntity(ctx, rec.EntityType, rec.EntityID)
	switch {
	case errors.Is(err, storage.ErrEntityNotFound):
	case err != nil:
		return err
	case !rec.IsNewerThan(current):
		return nil
	}

	return s.putJSON(ctx, s.entityKey(rec.EntityType, rec.EntityID), out)
}

// Read возвращает последнюю запись сущности
func (s *Store) Read(ctx context.Context, entityType, entityID string) (*models.ChangeRecord, error) {
	rec, err := s.readEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	s.open(rec)
	return rec, nil
}

func (s *Store) readEntity(ctx context.Context, entityType, entityID string) (*models.ChangeRecord, error) {
	var rec models.ChangeRecord
	if err := s.getJSON(ctx, s.entityKey(entityType, entityID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// appendChange записывает запись в журнал под следующим свободным номером.
// Номер занимается условной записью; при гонке хвост журнала перечитывается.
func (s *Store) appendChange(ctx context.Context, entityType string, rec *models.ChangeRecord) (int64, error) {
	s.mu.Lock()
	last, known := s.tail[entityType]
	s.mu.Unlock()

	if !known {
		var err error
		if last, err = s.lastSeq(ctx, entityType, 0); err != nil {
			return 0, err
		}
	}

	for range maxAppendAttempts {
		seq := last + 1
		err := s.putJSONIfAbsent(ctx, s.changeKey(entityType, seq), rec)
		if err == nil {
			s.setTail(entityType, seq)
			return seq, nil
		}
		switch {
		case errors.Is(err, errSeqBusy):
			// Чужая запись может не завершиться, номер пробуем снова
			continue
		case !errors.Is(err, errSeqTaken):
			return 0, err
		}

		// Номер занят: ищем новый хвост начиная с занятого номера
		if last, err = s.lastSeq(ctx, entityType, seq-1); err != nil {
			return 0, err
		}
		if last < seq {
			last = seq
		}
		s.logger.Debug("Change log sequence taken, retrying",
			"entity_type", entityType,
			"seq", seq,
			"tail", last)
	}

	return 0, fmt.Errorf("%w: change log contention for %s", storage.ErrRemoteUnavailable, entityType)
}

// lastSeq возвращает наибольший номер журнала после after, или after если записей нет
func (s *Store) lastSeq(ctx context.Context, entityType string, after int64) (int64, error) {
	dir := s.changeDir(entityType)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	}
	if after > 0 {
		input.StartAfter = aws.String(s.changeKey(entityType, after))
	}

	keys, err := s.list(ctx, input)
	if err != nil {
		return 0, err
	}

	last := after
	for _, key := range keys {
		if seq, ok := parseSeq(strings.TrimPrefix(key, dir)); ok && seq > last {
			last = seq
		}
	}
	s.setTail(entityType, last)
	return last, nil
}

func (s *Store) setTail(entityType string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq > s.tail[entityType] {
		s.tail[entityType] = seq
	}
}

// ChangesSince возвращает записи журнала с номером больше since.
// Курсор - наибольший прочитанный номер.
func (s *Store) ChangesSince(ctx context.Context, entityType string, since int64) ([]*models.ChangeRecord, int64, error) {
	dir := s.changeDir(entityType)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	}
	if since > 0 {
		input.StartAfter = aws.String(s.changeKey(entityType, since))
	}

	keys, err := s.list(ctx, input)
	if err != nil {
		return nil, 0, err
	}

	cursor := since
	var out []*models.ChangeRecord
	for _, key := range keys {
		seq, ok := parseSeq(strings.TrimPrefix(key, dir))
		if !ok {
			s.logger.Warn("Skipping unexpected object in change log", "key", key)
			continue
		}

		var rec models.ChangeRecord
		if err := s.getJSON(ctx, key, &rec); err != nil {
			if errors.Is(err, storage.ErrEntityNotFound) {
				continue
			}
			return nil, 0, err
		}
		s.open(&rec)
		out = append(out, &rec)

		if seq > cursor {
			cursor = seq
		}
	}

	return out, cursor, nil
}

// Checksum считает дайджест коллекции по последним записям сущностей
func (s *Store) Checksum(ctx context.Context, entityType string) (string, error) {
	dir := s.prefix + "entities/" + url.PathEscape(entityType) + "/"

	keys, err := s.list(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	})
	if err != nil {
		return "", err
	}

	checksums := make(map[string]string, len(keys))
	for _, key := range keys {
		var rec models.ChangeRecord
		if err := s.getJSON(ctx, key, &rec); err != nil {
			if errors.Is(err, storage.ErrEntityNotFound) {
				continue
			}
			return "", err
		}
		if rec.Operation != models.OperationDelete {
			checksums[rec.EntityID] = rec.Checksum
		}
	}

	return integrity.CollectionDigest(checksums), nil
}

// PutDevice сохраняет запись устройства
func (s *Store) PutDevice(ctx context.Context, d *models.Device) error {
	return s.putJSON(ctx, s.prefix+"devices/"+url.PathEscape(d.ID)+".json", d)
}

// ListDevices возвращает все устройства каталога
func (s *Store) ListDevices(ctx context.Context) ([]*models.Device, error) {
	keys, err := s.list(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "devices/"),
	})
	if err != nil {
		return nil, err
	}

	devices := make([]*models.Device, 0, len(keys))
	for _, key := range keys {
		var d models.Device
		if err := s.getJSON(ctx, key, &d); err != nil {
			if errors.Is(err, storage.ErrEntityNotFound) {
				continue
			}
			return nil, err
		}
		devices = append(devices, &d)
	}
	return devices, nil
}

func (s *Store) open(rec *models.ChangeRecord) {
	if s.sealer == nil || !crypto.IsSealed(rec.Payload) {
		return
	}
	if opened, err := s.sealer.Open(rec.Payload); err == nil {
		rec.Payload = opened
	}
}

func (s *Store) changeDir(entityType string) string {
	return s.prefix + "changes/" + url.PathEscape(entityType) + "/"
}

func (s *Store) changeKey(entityType string, seq int64) string {
	return fmt.Sprintf("%s%020d.json", s.changeDir(entityType), seq)
}

func (s *Store) entityKey(entityType, entityID string) string {
	return s.prefix + "entities/" + url.PathEscape(entityType) + "/" + url.PathEscape(entityID) + ".json"
}

// parseSeq извлекает номер журнала из имени объекта
func parseSeq(name string) (int64, bool) {
	head, ok := strings.CutSuffix(name, ".json")
	if !ok || len(head) != 20 {
		return 0, false
	}
	seq, err := strconv.ParseInt(head, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

func (s *Store) list(ctx context.Context, input *s3.ListObjectsV2Input) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: S3 list objects failed: %v", storage.ErrRemoteUnavailable, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return storage.ErrEntityNotFound
		}
		return fmt.Errorf("%w: S3 get object failed: %v", storage.ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: S3 read body failed: %v", storage.ErrRemoteUnavailable, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	return s.put(ctx, key, v, false)
}

// putJSONIfAbsent создает объект, только если ключ свободен; иначе errSeqTaken
func (s *Store) putJSONIfAbsent(ctx context.Context, key string, v any) error {
	return s.put(ctx, key, v, true)
}

func (s *Store) put(ctx context.Context, key string, v any, ifAbsent bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if ifAbsent {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err = s.api.PutObject(ctx, input); err != nil {
		if ifAbsent {
			if condErr := conditionError(err); condErr != nil {
				return condErr
			}
		}
		return fmt.Errorf("%w: S3 put object failed: %v", storage.ErrRemoteUnavailable, err)
	}
	return nil
}

// conditionError переводит отказ условной записи в errSeqTaken (412) или errSeqBusy (409)
func conditionError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed":
		return errSeqTaken
	case "ConditionalRequestConflict":
		return errSeqBusy
	}
	return nil
}
