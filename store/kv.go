package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/natsclient"
	"github.com/c360/formflow/submission"
)

// DefaultBucket is the KV bucket holding submissions
const DefaultBucket = "formflow_submissions"

const (
	submissionPrefix = "submission."
	shortCodePrefix  = "shortcode."
)

// KVStore persists submissions in a JetStream KV bucket. Updates are
// revision-checked: saving a copy that was read at an older revision fails
// with a transient ErrConflict instead of overwriting a concurrent write.
// Short codes are claimed under their own keys so uniqueness holds across
// processes.
type KVStore struct {
	client *natsclient.Client
	kv     *natsclient.KVStore
	opts   options
}

// NewKVStore opens (or creates) bucket on client
func NewKVStore(ctx context.Context, client *natsclient.Client, bucket string, opts ...Option) (*KVStore, error) {
	if client == nil {
		return nil, errors.Invalid("KVStore", "NewKVStore", "nats client cannot be nil")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kvBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Form flow submissions",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "create KV bucket")
	}

	return &KVStore{
		client: client,
		kv:     client.NewKVStore(kvBucket),
		opts:   defaultOptions(opts),
	}, nil
}

func submissionKey(id string) string { return submissionPrefix + id }

// Short codes may carry characters outside the KV key alphabet in their
// prefix or suffix; they are normalised to upper-case alphanumerics plus "-".
func shortCodeKey(code string) string {
	var b strings.Builder
	b.WriteString(shortCodePrefix)
	for _, r := range strings.ToUpper(code) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Get retrieves a submission along with its revision
func (s *KVStore) Get(ctx context.Context, id string) (*submission.Submission, error) {
	if id == "" {
		return nil, notFound(id)
	}
	entry, err := s.kv.Get(ctx, submissionKey(id))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, notFound(id)
		}
		return nil, errors.WrapTransient(err, "KVStore", "Get", "get from KV")
	}

	var sub submission.Submission
	if err := json.Unmarshal(entry.Value, &sub); err != nil {
		return nil, errors.WrapFatal(err, "KVStore", "Get", "unmarshal submission")
	}
	sub.Revision = entry.Revision
	return &sub, nil
}

// Create stores a new submission. It fails if the id is already taken.
func (s *KVStore) Create(ctx context.Context, sub *submission.Submission) error {
	if err := checkSubmission("KVStore", "Create", sub); err != nil {
		return err
	}
	if _, err := s.claimShortCode(ctx, "", sub.ShortCode); err != nil {
		return err
	}
	s.opts.stampNew(sub)
	claimed, err := s.claimShortCode(ctx, sub.ID, sub.ShortCode)
	if err != nil {
		return err
	}

	data, err := json.Marshal(sub)
	if err != nil {
		s.releaseShortCode(ctx, claimed, sub)
		return errors.WrapFatal(err, "KVStore", "Create", "marshal submission")
	}
	rev, err := s.kv.Create(ctx, submissionKey(sub.ID), data)
	if err != nil {
		s.releaseShortCode(ctx, claimed, sub)
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.ErrConflict, "KVStore", "Create",
				fmt.Sprintf("submission %s already exists", sub.ID))
		}
		return errors.WrapTransient(err, "KVStore", "Create", "create in KV")
	}
	sub.Revision = rev
	return nil
}

// Save creates a new submission or updates an existing one at its read revision
func (s *KVStore) Save(ctx context.Context, sub *submission.Submission) error {
	if err := checkSubmission("KVStore", "Save", sub); err != nil {
		return err
	}
	if sub.IsNew() || sub.Revision == 0 {
		return s.Create(ctx, sub)
	}
	claimed, err := s.claimShortCode(ctx, sub.ID, sub.ShortCode)
	if err != nil {
		return err
	}

	sub.UpdatedAt = s.opts.now().UTC()
	data, err := json.Marshal(sub)
	if err != nil {
		s.releaseShortCode(ctx, claimed, sub)
		return errors.WrapFatal(err, "KVStore", "Save", "marshal submission")
	}
	rev, err := s.kv.Update(ctx, submissionKey(sub.ID), data, sub.Revision)
	if err != nil {
		s.releaseShortCode(ctx, claimed, sub)
		if natsclient.IsKVConflictError(err) {
			return errors.WrapTransient(errors.ErrConflict, "KVStore", "Save",
				fmt.Sprintf("submission %s was modified concurrently", sub.ID))
		}
		return errors.WrapTransient(err, "KVStore", "Save", "update in KV")
	}
	sub.Revision = rev
	return nil
}

// claimShortCode records code as owned by id and reports whether this call
// created the claim. An empty id only checks that the code is free.
func (s *KVStore) claimShortCode(ctx context.Context, id, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	key := shortCodeKey(code)
	entry, err := s.kv.Get(ctx, key)
	switch {
	case err == nil:
		if id != "" && string(entry.Value) == id {
			return false, nil
		}
		return false, errors.WrapTransient(errors.ErrConflict, "KVStore", "claimShortCode", "short code already in use")
	case !natsclient.IsKVNotFoundError(err):
		return false, errors.WrapTransient(err, "KVStore", "claimShortCode", "look up short code")
	case id == "":
		return false, nil
	}

	if _, err := s.kv.Create(ctx, key, []byte(id)); err != nil {
		if natsclient.IsKVConflictError(err) {
			return false, errors.WrapTransient(errors.ErrConflict, "KVStore", "claimShortCode", "short code already in use")
		}
		return false, errors.WrapTransient(err, "KVStore", "claimShortCode", "claim short code")
	}
	return true, nil
}

// releaseShortCode drops a claim made for a write that did not land
func (s *KVStore) releaseShortCode(ctx context.Context, claimed bool, sub *submission.Submission) {
	if !claimed {
		return
	}
	if err := s.kv.Delete(ctx, shortCodeKey(sub.ShortCode)); err != nil && !natsclient.IsKVNotFoundError(err) {
		s.opts.logger.Warn("release short code failed", "submission_id", sub.ID, "short_code", sub.ShortCode,
			"error", err)
	}
}

// Delete removes a submission and releases its short code
func (s *KVStore) Delete(ctx context.Context, id string) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if sub.ShortCode != "" {
		if err := s.kv.Delete(ctx, shortCodeKey(sub.ShortCode)); err != nil && !natsclient.IsKVNotFoundError(err) {
			return errors.WrapTransient(err, "KVStore", "Delete", "release short code")
		}
	}
	if err := s.kv.Delete(ctx, submissionKey(id)); err != nil && !natsclient.IsKVNotFoundError(err) {
		return errors.WrapTransient(err, "KVStore", "Delete", "delete from KV")
	}
	return nil
}

// ShortCodeExists reports whether code has been claimed
func (s *KVStore) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.kv.Get(ctx, shortCodeKey(code))
	if err == nil {
		return true, nil
	}
	if natsclient.IsKVNotFoundError(err) {
		return false, nil
	}
	return false, errors.WrapTransient(err, "KVStore", "ShortCodeExists", "look up short code")
}

// Ping reports whether the NATS connection is up
func (s *KVStore) Ping(context.Context) error {
	if !s.client.IsHealthy() {
		return errors.WrapTransient(errors.ErrStorageUnavailable, "KVStore", "Ping",
			"nats status "+s.client.Status().String())
	}
	return nil
}

// Close is a no-op; the NATS client is owned by the caller
func (s *KVStore) Close() error { return nil }
