package tenant

import (
	"context"
	"sync"

	"github.com/yanizio/civitas/internal/city"
)

type fakeDir struct {
	mu     sync.Mutex
	cities []*city.City
	err    error
}

func newFakeDir(cs ...*city.City) *fakeDir { return &fakeDir{cities: cs} }

func (f *fakeDir) BySlug(_ context.Context, slug string) (*city.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.cities {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, city.ErrNotFound
}

func (f *fakeDir) ByID(_ context.Context, id uint64) (*city.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.cities {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, city.ErrNotFound
}

type fakeDomains struct {
	mu    sync.Mutex
	rows  []city.Domain
	err   error
	calls int
}

func (f *fakeDomains) Domains(context.Context) ([]city.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]city.Domain(nil), f.rows...), nil
}

var (
	santos   = &city.City{ID: 1, Slug: "santos", Name: "Santos", Status: city.StatusActive}
	campinas = &city.City{ID: 2, Slug: "campinas", Name: "Campinas", Status: city.StatusActive}
	ubatuba  = &city.City{ID: 3, Slug: "ubatuba", Name: "Ubatuba", Status: city.StatusDraft}
	paraty   = &city.City{ID: 4, Slug: "paraty", Name: "Paraty", Status: city.StatusPaused}
)

func testDomains() *fakeDomains {
	return &fakeDomains{rows: []city.Domain{
		{ID: 1, CityID: 1, Host: "santos.cidade.gov.br", Primary: true},
		{ID: 2, CityID: 2, Host: "Campinas.Cidade.gov.br", Primary: true},
	}}
}
