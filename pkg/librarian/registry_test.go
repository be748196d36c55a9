package librarian_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlib/librarystack/internal/testsupport"
	"github.com/patronlib/librarystack/pkg/librarian"
)

type fixedView struct{ count int }

func (f fixedView) CountByTopic(string) int { return f.count }

func TestResolveLibrarian_PicksHighestConfidence(t *testing.T) {
	lowGen := testsupport.NewStubGenerator(`{"confidence": 0.2}`)
	highGen := testsupport.NewStubGenerator(`{"confidence": 0.9}`)
	low := librarian.New(librarian.Identity{Name: "low"}, lowGen, nil)
	high := librarian.New(librarian.Identity{Name: "high"}, highGen, nil)

	reg := librarian.NewRegistry(low, nil)
	reg.Register(high)

	winner, err := reg.ResolveLibrarian(context.Background(), "content", "topic", fixedView{})
	require.NoError(t, err)
	assert.Equal(t, "high", winner.Name())
}

func TestResolveLibrarian_TieBreaksOnTopicPermission(t *testing.T) {
	genA := testsupport.NewStubGenerator(`{"confidence": 0.5}`)
	genB := testsupport.NewStubGenerator(`{"confidence": 0.5}`)
	generalist := librarian.New(librarian.Identity{Name: "generalist"}, genA, nil)
	specialist := librarian.New(librarian.Identity{Name: "specialist", Topics: []string{"programming"}}, genB, nil)

	reg := librarian.NewRegistry(generalist, nil)
	reg.Register(specialist)

	winner, err := reg.ResolveLibrarian(context.Background(), "content", "programming", fixedView{})
	require.NoError(t, err)
	assert.Equal(t, "specialist", winner.Name())
}

func TestResolveLibrarian_FallsBackToDefaultWhenNoConfidence(t *testing.T) {
	genA := testsupport.NewStubGenerator("not json")
	def := librarian.New(librarian.Identity{Name: "default"}, genA, nil)
	reg := librarian.NewRegistry(def, nil)

	winner, err := reg.ResolveLibrarian(context.Background(), "content", "topic", fixedView{})
	require.NoError(t, err)
	assert.Equal(t, "default", winner.Name())
}

func TestSpawnSpecialist_RegistersDerivedLibrarian(t *testing.T) {
	gen := testsupport.NewStubGenerator(`{}`)
	parent := librarian.New(librarian.Identity{Name: "parent", Purpose: "curates programming knowledge"}, gen, nil)
	reg := librarian.NewRegistry(parent, nil)

	specialist := reg.SpawnSpecialist(parent, "parent-rust", []string{"programming/rust"})
	assert.Equal(t, "parent-rust", specialist.Name())
	assert.True(t, specialist.Identity().HasTopic("programming/rust"))

	winner, err := reg.ResolveLibrarian(context.Background(), "c", "programming/rust", fixedView{})
	require.NoError(t, err)
	assert.NotNil(t, winner)
}
