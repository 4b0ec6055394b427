package objects

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/tcollier/txgate/internal/dispatch"
	"github.com/tcollier/txgate/internal/models"
)

// PersonRepository defines the store operations the Person object needs
type PersonRepository interface {
	GetByName(ctx context.Context, name string) (*models.Person, error)
	List(ctx context.Context, limit, offset int) ([]*models.Person, error)
	Create(ctx context.Context, person *models.Person) (*models.Person, error)
}

// PersonHandler exposes Person operations to the dispatch gateway
type PersonHandler struct {
	repo   PersonRepository
	logger *slog.Logger
}

// NewPersonHandler creates a new PersonHandler
func NewPersonHandler(repo PersonRepository, logger *slog.Logger) *PersonHandler {
	return &PersonHandler{repo: repo, logger: logger}
}

func (h *PersonHandler) Methods() map[dispatch.Method]dispatch.HandlerFunc {
	return map[dispatch.Method]dispatch.HandlerFunc{
		"getPersonByName": h.getPersonByName,
		"listPersons":     h.listPersons,
		"createPerson":    h.createPerson,
	}
}

// PersonResponse is the wire shape for a person
type PersonResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Aliases []string `json:"aliases"`
}

func personToResponse(person *models.Person) *PersonResponse {
	aliases := person.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return &PersonResponse{
		ID:      person.ID,
		Name:    person.Name,
		Email:   person.Email,
		Aliases: aliases,
	}
}

func (h *PersonHandler) getPersonByName(ctx context.Context, caller dispatch.Caller, params json.RawMessage) (any, error) {
	var name string
	if err := json.Unmarshal(params, &name); err != nil || strings.TrimSpace(name) == "" {
		return nil, models.ErrInvalidParameters.WithAlerts("params")
	}

	person, err := h.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidParameters.WithAlerts("params")
		}
		h.logger.Error("failed to get person", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	return personToResponse(person), nil
}

type listPersonsParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (h *PersonHandler) listPersons(ctx context.Context, caller dispatch.Caller, params json.RawMessage) (any, error) {
	args := listPersonsParams{Limit: 50}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, models.ErrInvalidParameters.WithAlerts("params")
		}
	}
	if args.Limit <= 0 || args.Limit > 200 || args.Offset < 0 {
		return nil, models.ErrInvalidParameters.WithAlerts("params")
	}

	persons, err := h.repo.List(ctx, args.Limit, args.Offset)
	if err != nil {
		h.logger.Error("failed to list persons", slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	responses := make([]*PersonResponse, 0, len(persons))
	for _, person := range persons {
		responses = append(responses, personToResponse(person))
	}
	return responses, nil
}

type createPersonParams struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Aliases []string `json:"aliases"`
}

func (h *PersonHandler) createPerson(ctx context.Context, caller dispatch.Caller, params json.RawMessage) (any, error) {
	var args createPersonParams
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, models.ErrInvalidParameters.WithAlerts("params")
	}
	if strings.TrimSpace(args.Name) == "" {
		return nil, models.ErrInvalidParameters.WithAlerts("name")
	}

	person, err := h.repo.Create(ctx, &models.Person{
		Name:    strings.TrimSpace(args.Name),
		Email:   strings.ToLower(strings.TrimSpace(args.Email)),
		Aliases: args.Aliases,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrInvalidParameters.WithAlerts("name")
		}
		h.logger.Error("failed to create person",
			slog.String("user_id", caller.UserID), slog.Any("error", err))
		return nil, models.ErrUnknown
	}

	h.logger.Info("person created",
		slog.String("person_id", person.ID),
		slog.String("user_id", caller.UserID))
	return personToResponse(person), nil
}
