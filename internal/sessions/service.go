package sessions

import (
	"context"
	"fmt"

	"ticketon/internal/shared/apperrors"

	"github.com/google/uuid"
)

type Service interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, activeOnly bool) ([]SessionResponse, error)
	UpdateStatus(ctx context.Context, id string, status SessionStatus) (*Session, error)
	GetSeatMap(ctx context.Context, sessionID string) ([]SeatResponse, error)
	UpdateSeatStatus(ctx context.Context, seatID string, status SeatStatus) (*Seat, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// CreateSession creates the session, its tariffs, and clones the seat map
// from the venue schema. Every seat is born AVAILABLE.
func (s *service) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	venueID, err := uuid.Parse(req.VenueID)
	if err != nil {
		return nil, apperrors.Validation("invalid venue id")
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, apperrors.Validation("session must end after it starts")
	}

	session := &Session{
		VenueID:  venueID,
		Name:     req.Name,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Status:   string(SessionDraft),
		IsActive: true,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// Tariffs first so seats can reference them by name
	tariffByName := make(map[string]uuid.UUID, len(req.Tariffs))
	for _, t := range req.Tariffs {
		tariff := &Tariff{
			SessionID: session.ID,
			Name:      t.Name,
			Price:     t.Price,
		}
		if err := s.repo.CreateTariff(ctx, tariff); err != nil {
			return nil, fmt.Errorf("failed to create tariff %q: %w", t.Name, err)
		}
		tariffByName[t.Name] = tariff.ID
	}

	seats := make([]Seat, 0, len(req.Seats))
	for _, entry := range req.Seats {
		seat := Seat{
			SessionID: session.ID,
			Row:       entry.Row,
			Number:    entry.Number,
			Section:   entry.Section,
			PosX:      entry.PosX,
			PosY:      entry.PosY,
			Status:    string(SeatAvailable),
		}
		if entry.Tariff != "" {
			if tariffID, ok := tariffByName[entry.Tariff]; ok {
				id := tariffID
				seat.TariffID = &id
			}
		}
		seats = append(seats, seat)
	}
	if err := s.repo.CreateSeats(ctx, seats); err != nil {
		return nil, fmt.Errorf("failed to create seats: %w", err)
	}

	return session, nil
}

func (s *service) GetSession(ctx context.Context, id string) (*Session, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperrors.Validation("invalid session id")
	}
	return s.repo.GetSessionByID(ctx, sessionID)
}

func (s *service) ListSessions(ctx context.Context, activeOnly bool) ([]SessionResponse, error) {
	sessions, err := s.repo.ListSessions(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, SessionResponse{
			ID:       session.ID.String(),
			VenueID:  session.VenueID.String(),
			Name:     session.Name,
			StartsAt: session.StartsAt,
			EndsAt:   session.EndsAt,
			Status:   session.Status,
		})
	}
	return resp, nil
}

func (s *service) UpdateStatus(ctx context.Context, id string, status SessionStatus) (*Session, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return nil, apperrors.Validation("invalid session id")
	}
	if !status.IsValid() {
		return nil, apperrors.Validation("invalid session status")
	}

	session, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Terminal states stay terminal
	current := SessionStatus(session.Status)
	if current == SessionCancelled || current == SessionCompleted {
		return nil, apperrors.Conflict(apperrors.CodeConflict, "session lifecycle is finished").
			WithCurrentStatus(session.Status)
	}

	if err := s.repo.UpdateSessionStatus(ctx, sessionID, status); err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	session.Status = string(status)
	return session, nil
}

func (s *service) GetSeatMap(ctx context.Context, sessionID string) ([]SeatResponse, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, apperrors.Validation("invalid session id")
	}
	if _, err := s.repo.GetSessionByID(ctx, id); err != nil {
		return nil, err
	}

	seats, err := s.repo.GetSeatsBySessionID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get seats: %w", err)
	}

	resp := make([]SeatResponse, 0, len(seats))
	for i := range seats {
		if seats[i].Status == string(SeatHidden) {
			continue
		}
		resp = append(resp, NewSeatResponse(&seats[i]))
	}
	return resp, nil
}

func (s *service) UpdateSeatStatus(ctx context.Context, seatID string, status SeatStatus) (*Seat, error) {
	id, err := uuid.Parse(seatID)
	if err != nil {
		return nil, apperrors.Validation("invalid seat id")
	}

	seat, err := s.repo.GetSeatByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Only administrator terminals plus the reset back to AVAILABLE go through
	// here; RESERVED and OCCUPIED are the coordinator's to write.
	switch status {
	case SeatAvailable, SeatDisabled, SeatHidden:
	default:
		return nil, apperrors.Validation("seat status not settable by administrators")
	}
	if seat.Status == string(SeatReserved) || seat.Status == string(SeatOccupied) {
		return nil, apperrors.Conflict(apperrors.CodeSeatNotAvailable, "seat has a live booking").
			WithSeat(seat.ID.String()).
			WithCurrentStatus(seat.Status)
	}

	if err := s.repo.UpdateSeatStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("failed to update seat status: %w", err)
	}
	seat.Status = string(status)
	return seat, nil
}
