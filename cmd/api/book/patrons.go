package book

import (
	"context"
	"strings"
)

// Patron is a registered library user who can borrow books.
type Patron struct {
	ID    int64
	Name  string
	Email string
}

type CreatePatronRequest struct {
	Name  string
	Email string
}

func (s *Service) ListPatrons(ctx context.Context) ([]Patron, error) {
	patrons, err := s.repo.ListPatrons(ctx)
	if err != nil {
		return nil, handleRepoErr("ListPatrons", err)
	}
	if patrons == nil {
		patrons = []Patron{}
	}
	return patrons, nil
}

func (s *Service) CreatePatron(ctx context.Context, req CreatePatronRequest) (Patron, error) {
	newPatron := Patron{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
	}
	if newPatron.Name == "" || newPatron.Email == "" {
		return Patron{}, ErrResponsePatronEntryBlankFields
	}

	createdPatron, err := s.repo.CreatePatron(ctx, newPatron)
	if err != nil {
		return Patron{}, handleRepoErr("CreatePatron", err)
	}
	return createdPatron, nil
}

/* Removes a patron. Loans of that patron keep their history without the patron reference. */
func (s *Service) DeletePatron(ctx context.Context, id int64) error {
	err := s.repo.DeletePatron(ctx, id)
	if err != nil {
		return handleRepoErr("DeletePatron", err)
	}
	return nil
}
