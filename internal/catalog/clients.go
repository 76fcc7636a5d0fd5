package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
)

// ClientInput creates or updates a client. An empty Code on create is
// replaced by a generated one; codes never change afterwards.
type ClientInput struct {
	Name  string `json:"name" validate:"required,max=120"`
	Phone string `json:"phone" validate:"max=32"`
	Code  string `json:"code" validate:"max=32"`
}

type ClientQuery struct {
	Search         string
	IncludeDeleted bool
	Limit          int64
	Offset         int64
}

func (s *Service) CreateClient(ctx context.Context, in ClientInput) (db.Client, error) {
	if err := apperr.ValidateStruct(in); err != nil {
		return db.Client{}, err
	}
	phone, err := s.normalizePhone(in.Phone)
	if err != nil {
		return db.Client{}, err
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		code = newClientCode()
	}

	client, err := s.db.Queries.CreateClient(ctx, db.CreateClientParams{
		Name:  strings.TrimSpace(in.Name),
		Phone: phone,
		Code:  code,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return db.Client{}, &apperr.ConflictError{Reason: "client code " + code + " is taken"}
		}
		return db.Client{}, apperr.Store("insert client", err)
	}
	log.Ctx(ctx).Info().Int64("client_id", client.ID).Str("code", client.Code).Msg("Client created")
	s.publish(ctx, db.CollectionClients, feed.OpInsert, client.ID, client)
	return client, nil
}

func (s *Service) UpdateClient(ctx context.Context, id int64, in ClientInput) (db.Client, error) {
	if err := apperr.ValidateStruct(in); err != nil {
		return db.Client{}, err
	}
	phone, err := s.normalizePhone(in.Phone)
	if err != nil {
		return db.Client{}, err
	}
	client, err := s.db.Queries.UpdateClient(ctx, db.UpdateClientParams{
		ID:    id,
		Name:  strings.TrimSpace(in.Name),
		Phone: phone,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Client{}, apperr.NotFound("client", id)
		}
		return db.Client{}, apperr.Store("update client", err)
	}
	s.publish(ctx, db.CollectionClients, feed.OpUpdate, client.ID, client)
	return client, nil
}

func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	n, err := s.db.Queries.SoftDeleteClient(ctx, id)
	if err != nil {
		return apperr.Store("delete client", err)
	}
	if n == 0 {
		return apperr.NotFound("client", id)
	}
	log.Ctx(ctx).Info().Int64("client_id", id).Msg("Client deactivated")
	s.publish(ctx, db.CollectionClients, feed.OpDelete, id, nil)
	return nil
}

func (s *Service) GetClient(ctx context.Context, id int64) (db.Client, error) {
	client, err := s.db.Queries.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Client{}, apperr.NotFound("client", id)
		}
		return db.Client{}, apperr.Store("get client", err)
	}
	return client, nil
}

func (s *Service) ListClients(ctx context.Context, q ClientQuery) ([]db.Client, error) {
	clients, err := s.db.Queries.ListClients(ctx, db.ListClientsParams{
		SearchTerm:     strings.TrimSpace(q.Search),
		IncludeDeleted: q.IncludeDeleted,
		Limit:          q.Limit,
		Offset:         q.Offset,
	})
	if err != nil {
		return nil, apperr.Store("list clients", err)
	}
	return clients, nil
}

// normalizePhone stores numbers in E.164. Blank means no phone.
func (s *Service) normalizePhone(raw string) (sql.NullString, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sql.NullString{}, nil
	}
	num, err := phonenumbers.Parse(raw, s.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return sql.NullString{}, apperr.Invalid("phone", "is not a valid phone number")
	}
	return sql.NullString{String: phonenumbers.Format(num, phonenumbers.E164), Valid: true}, nil
}

func newClientCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "C-" + strings.ToUpper(id[:8])
}
