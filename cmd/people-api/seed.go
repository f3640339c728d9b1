package main

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/models"
)

// fakePerson returns a random, valid create input.
func fakePerson(faker *gofakeit.Faker) models.CreateInput {
	phone := faker.Phone()
	address := faker.Address().Address
	birth := faker.DateRange(
		time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC),
	).Format(models.DateLayout)

	return models.CreateInput{
		Name:      faker.Name(),
		Email:     strings.ToLower(faker.Username()) + "." + faker.DigitN(8) + "@example.com",
		Phone:     &phone,
		BirthDate: &birth,
		Address:   &address,
	}
}

// seedPeople creates count fake people with up to jobs inserts in flight.
// Email collisions are skipped; any other failure stops the run.
func seedPeople(ctx context.Context, d *dao.DAO, count, jobs int) (created, skipped int, err error) {
	if jobs < 1 {
		jobs = 1
	}

	var nCreated, nSkipped atomic.Int64
	faker := gofakeit.New(0)
	inputs := make([]models.CreateInput, count)
	for i := range inputs {
		inputs[i] = fakePerson(faker)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for _, in := range inputs {
		g.Go(func() error {
			_, err := d.Create(gctx, in)
			switch {
			case err == nil:
				nCreated.Add(1)
			case errors.Is(err, dao.ErrConflict):
				nSkipped.Add(1)
			default:
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	return int(nCreated.Load()), int(nSkipped.Load()), err
}
