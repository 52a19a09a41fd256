package service

import (
	"context"
	"errors"
	"fmt"

	"crm-api/internal/domain"
	"crm-api/internal/entity"
	"crm-api/internal/events"
	"crm-api/internal/format"
	"crm-api/internal/observability/logger"
	"crm-api/internal/permission"
	"crm-api/internal/repo"
	"crm-api/internal/validation"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Keys the client may not set directly.
var systemKeys = []string{"id", "entity_type", "created_by", "created_date", "updated_date", domain.FieldPhoneE164}

// EntityService is the permission-gated CRUD entry point for every entity type.
type EntityService struct {
	store     entity.Client
	publisher events.Publisher
	audit     AuditLogger
	validate  *validator.Validate
	log       *logger.Logger
}

func NewEntityService(store entity.Client, publisher events.Publisher, audit AuditLogger, log *logger.Logger) *EntityService {
	return &EntityService{
		store:     store,
		publisher: publisher,
		audit:     audit,
		validate:  validation.NewValidator(),
		log:       log,
	}
}

func (s *EntityService) resource(t domain.EntityType) (domain.Resource, error) {
	res, ok := t.Resource()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntityType, t)
	}
	return res, nil
}

// List returns records of type t visible to the session.
func (s *EntityService) List(ctx context.Context, sess *permission.Session, t domain.EntityType, opts domain.ListOptions) ([]domain.Record, error) {
	return s.Filter(ctx, sess, t, nil, opts)
}

// Filter returns records whose data matches predicate. Under personal scope
// only the caller's own records are returned.
func (s *EntityService) Filter(ctx context.Context, sess *permission.Session, t domain.EntityType, predicate map[string]any, opts domain.ListOptions) ([]domain.Record, error) {
	res, err := s.resource(t)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, res, domain.ActionView); err != nil {
		return nil, err
	}
	opts.CreatedBy = ownerFilter(sess, res)

	records, err := s.store.Filter(ctx, t, predicate, opts)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", t, err)
	}
	return records, nil
}

// Get returns one record. Records outside a personal scope read as not found.
func (s *EntityService) Get(ctx context.Context, sess *permission.Session, t domain.EntityType, id string) (*domain.Record, error) {
	res, err := s.resource(t)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, res, domain.ActionView); err != nil {
		return nil, err
	}
	return s.load(ctx, sess, res, t, id)
}

func (s *EntityService) load(ctx context.Context, sess *permission.Session, res domain.Resource, t domain.EntityType, id string) (*domain.Record, error) {
	rec, err := s.store.Get(ctx, t, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", t, id, err)
	}
	if owner := ownerFilter(sess, res); owner != nil && !ownedBy(rec, *owner) {
		return nil, fmt.Errorf("get %s %s: %w", t, id, ErrNotFound)
	}
	return rec, nil
}

// Create normalizes and stores a new record owned by the caller.
func (s *EntityService) Create(ctx context.Context, sess *permission.Session, t domain.EntityType, data map[string]any) (*domain.Record, error) {
	res, err := s.resource(t)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, res, domain.ActionCreate); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	if err := s.normalize(ctx, t, data, true); err != nil {
		return nil, err
	}

	rec, err := s.store.Create(ctx, t, data, sess.UserID())
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", t, err)
	}

	s.log.Info(ctx, "entity created",
		logger.Module("entity"),
		logger.Action("create"),
		logger.EntityType(string(t)),
		zap.String("entity_id", rec.ID),
	)
	s.after(ctx, sess, events.TypeEntityCreated, "create", rec.EntityType, rec.ID)
	return rec, nil
}

// Update merges patch into the record (top-level keys replace).
func (s *EntityService) Update(ctx context.Context, sess *permission.Session, t domain.EntityType, id string, patch map[string]any) (*domain.Record, error) {
	res, err := s.resource(t)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, res, domain.ActionEdit); err != nil {
		return nil, err
	}
	if ownerFilter(sess, res) != nil {
		if _, err := s.load(ctx, sess, res, t, id); err != nil {
			return nil, err
		}
	}
	if patch == nil {
		patch = map[string]any{}
	}
	if err := s.normalize(ctx, t, patch, false); err != nil {
		return nil, err
	}

	rec, err := s.store.Update(ctx, t, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", t, id, err)
	}

	s.log.Info(ctx, "entity updated",
		logger.Module("entity"),
		logger.Action("update"),
		logger.EntityType(string(t)),
		zap.String("entity_id", id),
	)
	s.after(ctx, sess, events.TypeEntityUpdated, "update", t, id)
	return rec, nil
}

// Delete removes a record.
func (s *EntityService) Delete(ctx context.Context, sess *permission.Session, t domain.EntityType, id string) error {
	res, err := s.resource(t)
	if err != nil {
		return err
	}
	if err := authorize(sess, res, domain.ActionDelete); err != nil {
		return err
	}
	if ownerFilter(sess, res) != nil {
		if _, err := s.load(ctx, sess, res, t, id); err != nil {
			return err
		}
	}

	if err := s.store.Delete(ctx, t, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", t, id, err)
	}

	s.log.Info(ctx, "entity deleted",
		logger.Module("entity"),
		logger.Action("delete"),
		logger.EntityType(string(t)),
		zap.String("entity_id", id),
	)
	s.after(ctx, sess, events.TypeEntityDeleted, "delete", t, id)
	return nil
}

// WithDisplay fills Record.Display with formatted labels.
func WithDisplay(records []domain.Record) []domain.Record {
	for i := range records {
		records[i].Display = format.Display(records[i].EntityType, records[i].Data)
	}
	return records
}

func (s *EntityService) after(ctx context.Context, sess *permission.Session, eventType, action string, t domain.EntityType, id string) {
	publish(ctx, s.publisher, s.log, "entity", events.New(eventType, string(t), id, sess.UserID(), nil))
	entityID := id
	writeAudit(ctx, s.audit, s.log, "entity", repo.AuditEntry{
		ActorID:      sess.UserID(),
		Action:       action,
		ResourceType: string(t),
		ResourceID:   &entityID,
	})
}

// normalize strips system keys, validates tax ids, formats phones and checks
// custom fields. creating=true also enforces required custom fields.
func (s *EntityService) normalize(ctx context.Context, t domain.EntityType, data map[string]any, creating bool) error {
	for _, k := range systemKeys {
		delete(data, k)
	}

	fields := map[string]string{}

	if t == domain.EntityLead {
		normalizeTaxID(data, "cpf", validation.ValidateCPF, "invalid CPF", fields)
	}
	if t == domain.EntityCompany {
		normalizeTaxID(data, "cnpj", validation.ValidateCNPJ, "invalid CNPJ", fields)
	}
	if phone, ok := data[domain.FieldPhone].(string); ok && phone != "" {
		data[domain.FieldPhone] = format.FormatPhoneNumber(phone)
		// numbers libphonenumber rejects are kept as typed, without the E.164 twin
		if e164, err := format.NormalizePhoneE164(phone, ""); err == nil {
			data[domain.FieldPhoneE164] = e164
		}
	}

	if t == domain.EntityCustomField {
		s.checkDefinition(data, creating, fields)
	} else {
		raw, present := data[domain.FieldCustomFields]
		if creating || present {
			defs, err := s.customFields(ctx, t)
			if err != nil {
				return err
			}
			for k, v := range validateCustomFields(defs, raw, present) {
				fields[k] = v
			}
		}
	}

	if len(fields) > 0 {
		return newValidationError(nil, "invalid "+string(t)+" payload", fields)
	}
	return nil
}

func normalizeTaxID(data map[string]any, key string, valid func(string) bool, msg string, fields map[string]string) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return
	}
	s, ok := raw.(string)
	if !ok || !valid(s) {
		fields[key] = msg
		return
	}
	data[key] = format.Digits(s)
}

// checkDefinition validates a CustomField definition payload.
func (s *EntityService) checkDefinition(data map[string]any, creating bool, fields map[string]string) {
	if !creating {
		return
	}
	def := domain.CustomFieldFromRecord(&domain.Record{Data: data})
	if err := s.validate.Struct(def); err != nil {
		for k, v := range validation.FieldErrors(err) {
			fields[k] = v
		}
	}
	for _, at := range def.AppliesTo {
		if !at.IsValid() {
			fields["applies_to"] = "unknown entity type: " + string(at)
		}
	}
}

// customFields loads the definitions applying to t. Definitions are system
// data and are read regardless of the caller's records permission.
func (s *EntityService) customFields(ctx context.Context, t domain.EntityType) ([]domain.CustomField, error) {
	recs, err := s.store.List(ctx, domain.EntityCustomField, domain.ListOptions{Limit: domain.MaxListLimit, Sort: "name"})
	if err != nil && !errors.Is(err, entity.ErrNotFound) {
		return nil, fmt.Errorf("load custom fields: %w", err)
	}
	var defs []domain.CustomField
	for i := range recs {
		def := domain.CustomFieldFromRecord(&recs[i])
		if def.AppliesToType(t) {
			defs = append(defs, def)
		}
	}
	return defs, nil
}
