// Package catalog maintains the reference data reservations point at:
// courts and their groups, clients, and the expense side of the books.
package catalog

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtdesk/internal/apperr"
	"github.com/codr1/courtdesk/internal/db"
	"github.com/codr1/courtdesk/internal/feed"
)

const defaultPhoneRegion = "US"

type Service struct {
	db          *db.DB
	publisher   feed.Publisher
	phoneRegion string
}

// NewService builds the catalog. phoneRegion is the ISO region used to read
// phone numbers written without a country code.
func NewService(database *db.DB, publisher feed.Publisher, phoneRegion string) (*Service, error) {
	if database == nil {
		return nil, errors.New("catalog service requires a database")
	}
	if phoneRegion == "" {
		phoneRegion = defaultPhoneRegion
	}
	return &Service{db: database, publisher: publisher, phoneRegion: phoneRegion}, nil
}

func (s *Service) publish(ctx context.Context, collection string, op feed.Op, id int64, row any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, feed.NewNotification(collection, op, id, row))
}

// CourtInput creates or replaces a court's mutable fields. A nil GroupID
// leaves the court ungrouped.
type CourtInput struct {
	Name    string `json:"name" validate:"required,max=80"`
	GroupID *int64 `json:"group_id" validate:"omitempty,gt=0"`
}

type GroupInput struct {
	Name string `json:"name" validate:"required,max=80"`
}

func (s *Service) CreateGroup(ctx context.Context, in GroupInput) (db.CourtGroup, error) {
	if err := apperr.ValidateStruct(in); err != nil {
		return db.CourtGroup{}, err
	}
	group, err := s.db.Queries.CreateCourtGroup(ctx, in.Name)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return db.CourtGroup{}, &apperr.ConflictError{Reason: "court group name already exists"}
		}
		return db.CourtGroup{}, apperr.Store("insert court group", err)
	}
	log.Ctx(ctx).Info().Int64("group_id", group.ID).Str("name", group.Name).Msg("Court group created")
	s.publish(ctx, db.CollectionCourtGroups, feed.OpInsert, group.ID, group)
	return group, nil
}

func (s *Service) ListGroups(ctx context.Context) ([]db.CourtGroup, error) {
	groups, err := s.db.Queries.ListCourtGroups(ctx)
	if err != nil {
		return nil, apperr.Store("list court groups", err)
	}
	return groups, nil
}

func (s *Service) CreateCourt(ctx context.Context, in CourtInput) (db.Court, error) {
	groupID, err := s.courtGroupRef(ctx, in)
	if err != nil {
		return db.Court{}, err
	}
	court, err := s.db.Queries.CreateCourt(ctx, db.CreateCourtParams{Name: in.Name, GroupID: groupID})
	if err != nil {
		return db.Court{}, apperr.Store("insert court", err)
	}
	log.Ctx(ctx).Info().Int64("court_id", court.ID).Str("name", court.Name).Msg("Court created")
	s.publish(ctx, db.CollectionCourts, feed.OpInsert, court.ID, court)
	return court, nil
}

// UpdateCourt renames and regroups an active court.
func (s *Service) UpdateCourt(ctx context.Context, id int64, in CourtInput) (db.Court, error) {
	groupID, err := s.courtGroupRef(ctx, in)
	if err != nil {
		return db.Court{}, err
	}
	court, err := s.db.Queries.UpdateCourt(ctx, db.UpdateCourtParams{ID: id, Name: in.Name, GroupID: groupID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Court{}, apperr.NotFound("court", id)
		}
		return db.Court{}, apperr.Store("update court", err)
	}
	s.publish(ctx, db.CollectionCourts, feed.OpUpdate, court.ID, court)
	return court, nil
}

// DeleteCourt hides the court from active views. Its reservations and
// ledger rows keep resolving it.
func (s *Service) DeleteCourt(ctx context.Context, id int64) error {
	n, err := s.db.Queries.SoftDeleteCourt(ctx, id)
	if err != nil {
		return apperr.Store("delete court", err)
	}
	if n == 0 {
		return apperr.NotFound("court", id)
	}
	log.Ctx(ctx).Info().Int64("court_id", id).Msg("Court deactivated")
	s.publish(ctx, db.CollectionCourts, feed.OpDelete, id, nil)
	return nil
}

func (s *Service) GetCourt(ctx context.Context, id int64) (db.Court, error) {
	court, err := s.db.Queries.GetCourt(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Court{}, apperr.NotFound("court", id)
		}
		return db.Court{}, apperr.Store("get court", err)
	}
	return court, nil
}

func (s *Service) ListCourts(ctx context.Context, includeDeleted bool) ([]db.Court, error) {
	courts, err := s.db.Queries.ListCourts(ctx, includeDeleted)
	if err != nil {
		return nil, apperr.Store("list courts", err)
	}
	return courts, nil
}

func (s *Service) courtGroupRef(ctx context.Context, in CourtInput) (sql.NullInt64, error) {
	if err := apperr.ValidateStruct(in); err != nil {
		return sql.NullInt64{}, err
	}
	if in.GroupID == nil {
		return sql.NullInt64{}, nil
	}
	if _, err := s.db.Queries.GetCourtGroup(ctx, *in.GroupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.NullInt64{}, apperr.Invalid("group_id", "does not exist")
		}
		return sql.NullInt64{}, apperr.Store("get court group", err)
	}
	return sql.NullInt64{Int64: *in.GroupID, Valid: true}, nil
}
