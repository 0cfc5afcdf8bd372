package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"tabularium/internal/domain"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory repository with the append policy
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return newTestRepoWithOptions(t, Options{})
}

// newTestRepoWithOptions creates an in-memory repository for testing
func newTestRepoWithOptions(t *testing.T, opts Options) *Repository {
	t.Helper()
	repo, err := New(":memory:", opts)
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// parseDoc decodes a JSON literal the same way the codec does, with
// numbers preserved as literals.
func parseDoc(t *testing.T, text string) domain.Document {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc domain.Document
	if err := dec.Decode(&doc); err != nil {
		t.Fatalf("failed to parse document %s: %v", text, err)
	}
	return doc
}

// backdate shifts every record of a structure into the past
func backdate(t *testing.T, repo *Repository, structure string, seconds int64) {
	t.Helper()
	_, err := repo.db.Exec(`UPDATE `+quoteIdent(structure)+` SET recorded_at = recorded_at - ?`, seconds)
	if err != nil {
		t.Fatalf("failed to backdate %s: %v", structure, err)
	}
}

// dropLatest removes the newest record of a structure
func dropLatest(t *testing.T, repo *Repository, structure string) {
	t.Helper()
	q := quoteIdent(structure)
	_, err := repo.db.Exec(`DELETE FROM ` + q + ` WHERE id = (SELECT MAX(id) FROM ` + q + `)`)
	if err != nil {
		t.Fatalf("failed to drop latest record of %s: %v", structure, err)
	}
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %#v, got %#v", expected, actual)
	}
}

// assertValidationError fails the test unless err is a ValidationError
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// ============================================================================
// Round Trip
// ============================================================================

func TestStoreAndLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "flat scalars",
			doc:  `{"name": "alice", "age": 34, "score": 12.5, "active": true, "note": null}`,
		},
		{
			name: "nested object",
			doc:  `{"name": "bob", "address": {"city": "Lisbon", "zip": "1100"}}`,
		},
		{
			name: "deeply nested object",
			doc:  `{"a": {"b": {"c": {"d": "bottom"}}}}`,
		},
		{
			name: "arrays stay verbatim",
			doc:  `{"tags": ["red", "green"], "mixed": [1, null, "x", true]}`,
		},
		{
			name: "empty document",
			doc:  `{}`,
		},
		{
			name: "empty nested object",
			doc:  `{"meta": {}}`,
		},
		{
			name: "ip-like string survives",
			doc:  `{"host": "192.168.1.1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t)
			ctx := context.Background()
			doc := parseDoc(t, tt.doc)

			assertNoError(t, repo.Store(ctx, "records", doc))

			loaded, err := repo.Load(ctx, "records")
			assertNoError(t, err)
			assertEqual(t, doc, loaded)
		})
	}
}

func TestRoundTripLossiness(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// A string that happens to be a JSON literal is coerced on the way
	// back. This is declared behavior, not an accident.
	doc := domain.Document{"flag": "true", "count": "7"}
	assertNoError(t, repo.Store(ctx, "records", doc))

	loaded, err := repo.Load(ctx, "records")
	assertNoError(t, err)
	assertEqual(t, domain.Document{"flag": true, "count": json.Number("7")}, loaded)
}

func TestLoadMissingStructure(t *testing.T) {
	repo := newTestRepo(t)

	doc, err := repo.Load(context.Background(), "nothing_here")
	assertNoError(t, err)
	assertEqual(t, domain.Document{}, doc)
}

// ============================================================================
// Validation
// ============================================================================

func TestStoreValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("nil document is not an object", func(t *testing.T) {
		err := repo.Store(ctx, "records", nil)
		if !errors.Is(err, domain.ErrNotAnObject) {
			t.Fatalf("expected ErrNotAnObject, got %v", err)
		}
	})

	t.Run("empty structure name", func(t *testing.T) {
		assertValidationError(t, repo.Store(ctx, "", domain.Document{"a": "b"}))
	})

	t.Run("empty key", func(t *testing.T) {
		assertValidationError(t, repo.Store(ctx, "records", domain.Document{"": "b"}))
	})

	t.Run("reserved keys", func(t *testing.T) {
		assertValidationError(t, repo.Store(ctx, "records", domain.Document{"id": "1"}))
		assertValidationError(t, repo.Store(ctx, "records", domain.Document{"recorded_at": "1"}))
	})

	t.Run("empty structure name on load", func(t *testing.T) {
		_, err := repo.Load(ctx, "")
		assertValidationError(t, err)
	})
}

func TestDepthLimit(t *testing.T) {
	repo := newTestRepoWithOptions(t, Options{MaxDepth: 3})
	ctx := context.Background()

	ok := parseDoc(t, `{"a": {"b": {"leaf": 1}}}`)
	assertNoError(t, repo.Store(ctx, "records", ok))

	tooDeep := parseDoc(t, `{"a": {"b": {"c": {"leaf": 1}}}}`)
	assertValidationError(t, repo.Store(ctx, "other", tooDeep))
}

// ============================================================================
// Schema Widening
// ============================================================================

func TestSchemaWidening(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.Store(ctx, "people", parseDoc(t, `{"name": "alice"}`)))
	assertNoError(t, repo.Store(ctx, "people", parseDoc(t, `{"name": "bob", "city": "Berlin"}`)))

	columns, err := repo.catalog.columnsOf(ctx, "people")
	assertNoError(t, err)
	assertEqual(t, []string{"name", "city"}, columns)

	t.Run("latest record wins", func(t *testing.T) {
		loaded, err := repo.Load(ctx, "people")
		assertNoError(t, err)
		assertEqual(t, parseDoc(t, `{"name": "bob", "city": "Berlin"}`), loaded)
	})

	t.Run("records from before the widening read as absent keys", func(t *testing.T) {
		dropLatest(t, repo, "people")

		loaded, err := repo.Load(ctx, "people")
		assertNoError(t, err)
		assertEqual(t, parseDoc(t, `{"name": "alice"}`), loaded)
	})
}

// ============================================================================
// Write Policies
// ============================================================================

func TestAppendHistoryKeepsEveryRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.Store(ctx, "events", parseDoc(t, `{"state": "open"}`)))
	assertNoError(t, repo.Store(ctx, "events", parseDoc(t, `{"state": "closed"}`)))

	n, err := repo.catalog.recordCount(ctx, "events")
	assertNoError(t, err)
	assertEqual(t, int64(2), n)

	loaded, err := repo.Load(ctx, "events")
	assertNoError(t, err)
	assertEqual(t, parseDoc(t, `{"state": "closed"}`), loaded)
}

func TestUpsertSingletonKeepsOneRecord(t *testing.T) {
	repo := newTestRepoWithOptions(t, Options{Policy: domain.PolicyUpsertSingleton})
	ctx := context.Background()

	assertNoError(t, repo.Store(ctx, "config", parseDoc(t, `{"host": "a", "port": 80}`)))
	assertNoError(t, repo.Store(ctx, "config", parseDoc(t, `{"port": 8080, "tls": true}`)))

	n, err := repo.catalog.recordCount(ctx, "config")
	assertNoError(t, err)
	assertEqual(t, int64(1), n)

	// The upsert touches only the columns of the second document; the
	// host cell written by the first shape survives.
	loaded, err := repo.Load(ctx, "config")
	assertNoError(t, err)
	assertEqual(t, parseDoc(t, `{"host": "a", "port": 8080, "tls": true}`), loaded)
}

// ============================================================================
// Retention Sweep
// ============================================================================

func TestSweepRemovesOldRecordsAndDescendants(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := parseDoc(t, `{"visitor": "alice", "session": {"ip": "10.0.0.1"}}`)
	assertNoError(t, repo.Store(ctx, "visits", old))
	backdate(t, repo, "visits", 10*24*3600)
	backdate(t, repo, "visits_session", 10*24*3600)

	fresh := parseDoc(t, `{"visitor": "bob", "session": {"ip": "10.0.0.2"}}`)
	assertNoError(t, repo.Store(ctx, "visits", fresh))

	result, err := repo.Sweep(ctx, "visits", 7)
	assertNoError(t, err)
	assertEqual(t, 2, result.StructuresSwept)
	assertEqual(t, int64(2), result.RecordsDeleted)

	loaded, err := repo.Load(ctx, "visits")
	assertNoError(t, err)
	assertEqual(t, fresh, loaded)

	n, err := repo.catalog.recordCount(ctx, "visits_session")
	assertNoError(t, err)
	assertEqual(t, int64(1), n)
}

func TestSweepDoesNotCrossFamilies(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// visitsXtra is not a descendant of visits even though an unescaped
	// LIKE pattern would match it.
	assertNoError(t, repo.Store(ctx, "visits", parseDoc(t, `{"a": 1}`)))
	assertNoError(t, repo.Store(ctx, "visitsXtra", parseDoc(t, `{"b": 2}`)))
	backdate(t, repo, "visits", 10*24*3600)
	backdate(t, repo, "visitsXtra", 10*24*3600)

	result, err := repo.Sweep(ctx, "visits", 7)
	assertNoError(t, err)
	assertEqual(t, 1, result.StructuresSwept)

	n, err := repo.catalog.recordCount(ctx, "visitsXtra")
	assertNoError(t, err)
	assertEqual(t, int64(1), n)
}

func TestSweepMissingRootIsEmpty(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.Sweep(context.Background(), "nothing", 7)
	assertNoError(t, err)
	assertEqual(t, 0, result.StructuresSwept)
	assertEqual(t, int64(0), result.RecordsDeleted)
}

func TestSweepValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Sweep(ctx, "", 7)
	assertValidationError(t, err)

	_, err = repo.Sweep(ctx, "visits", -1)
	assertValidationError(t, err)
}

// ============================================================================
// Attribute Search
// ============================================================================

func TestFindByAttribute(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.Store(ctx, "alpha", parseDoc(t, `{"city": "New York", "name": "alice"}`)))
	assertNoError(t, repo.Store(ctx, "beta", parseDoc(t, `{"name": "bob", "address": {"city": "New York"}}`)))
	assertNoError(t, repo.Store(ctx, "gamma", parseDoc(t, `{"city": "Boston"}`)))

	results, err := repo.FindByAttribute(ctx, "city", "New York")
	assertNoError(t, err)
	assertEqual(t, 2, len(results))

	// Structures are scanned in name order: alpha, then beta_address.
	assertEqual(t, parseDoc(t, `{"city": "New York", "name": "alice"}`), results[0])
	assertEqual(t, parseDoc(t, `{"city": "New York"}`), results[1])

	again, err := repo.FindByAttribute(ctx, "city", "New York")
	assertNoError(t, err)
	assertEqual(t, results, again)
}

func TestFindByAttributeMatchesHistoricalRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.Store(ctx, "tickets", parseDoc(t, `{"state": "open", "ref": "T1"}`)))
	assertNoError(t, repo.Store(ctx, "tickets", parseDoc(t, `{"state": "closed", "ref": "T1"}`)))

	// The newest record matching the term is returned even when an even
	// newer record no longer matches.
	results, err := repo.FindByAttribute(ctx, "state", "open")
	assertNoError(t, err)
	assertEqual(t, 1, len(results))
	assertEqual(t, parseDoc(t, `{"state": "open", "ref": "T1"}`), results[0])
}

func TestFindByAttributeValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("both terms empty short-circuits", func(t *testing.T) {
		results, err := repo.FindByAttribute(ctx, "", "")
		assertNoError(t, err)
		assertEqual(t, 0, len(results))
	})

	t.Run("empty key is invalid", func(t *testing.T) {
		_, err := repo.FindByAttribute(ctx, "", "x")
		assertValidationError(t, err)
	})

	t.Run("empty value is invalid", func(t *testing.T) {
		_, err := repo.FindByAttribute(ctx, "city", "")
		assertValidationError(t, err)
	})
}

// ============================================================================
// Structure Listing
// ============================================================================

func TestStructures(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.Store(ctx, "zoo", parseDoc(t, `{"animal": "yak", "keeper": {"name": "kim"}}`)))
	assertNoError(t, repo.Store(ctx, "zoo", parseDoc(t, `{"animal": "emu", "keeper": {"name": "lee"}}`)))
	assertNoError(t, repo.Store(ctx, "barn", parseDoc(t, `{"animal": "cow"}`)))

	infos, err := repo.Structures(ctx)
	assertNoError(t, err)
	assertEqual(t, []domain.StructureInfo{
		{Name: "barn", Records: 1},
		{Name: "zoo", Records: 2},
		{Name: "zoo_keeper", Records: 2},
	}, infos)
}
