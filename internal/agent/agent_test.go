package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-agent/constants"
	"github.com/joseph-ayodele/statement-agent/internal/common"
	"github.com/joseph-ayodele/statement-agent/internal/llm"
	"github.com/joseph-ayodele/statement-agent/internal/normalize"
	"github.com/joseph-ayodele/statement-agent/internal/parser"
	"github.com/joseph-ayodele/statement-agent/internal/repository"
	"github.com/joseph-ayodele/statement-agent/internal/table"
	"github.com/joseph-ayodele/statement-agent/internal/verify"
)

const truthCSV = `Date,Description,Debit Amt,Credit Amt,Balance
01-08-2024,Salary Credit,,1500.00,2500.00
02-08-2024,ATM Withdrawal,200.00,,2300.00
03-08-2024,Card Payment,10.00,,2290.00
`

// monthFirstCSV is the same statement written month first.
const monthFirstCSV = `Date,Description,Debit Amt,Credit Amt,Balance
08-01-2024,Salary Credit,,1500.00,2500.00
08-02-2024,ATM Withdrawal,200.00,,2300.00
08-03-2024,Card Payment,10.00,,2290.00
`

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (*parser.Program, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*parser.Program)
	return p, args.Error(1)
}

type fixture struct {
	dir    string
	target Target
	store  *parser.Store
	debug  string
}

func newFixture(t *testing.T, doc string) fixture {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "data", "acme")
	require.NoError(t, os.MkdirAll(src, 0o755))
	docPath := filepath.Join(src, "acme_sample.csv")
	truthPath := filepath.Join(src, "result.csv")
	require.NoError(t, os.WriteFile(docPath, []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(truthPath, []byte(truthCSV), 0o644))
	return fixture{
		dir:    dir,
		target: Target{Source: "acme", DocumentPath: docPath, TruthPath: truthPath},
		store:  parser.NewStore(filepath.Join(dir, "custom_parsers"), nil),
		debug:  filepath.Join(dir, "debug"),
	}
}

func (f fixture) agent(gen llm.Generator, max int) *Agent {
	v := verify.New(verify.Config{DebugDir: f.debug}, nil, nil)
	return New(gen, v, f.store, Options{MaxIterations: max}, nil)
}

func truthSchema(t *testing.T) table.Schema {
	t.Helper()
	tb, err := table.ReadCSV(strings.NewReader(truthCSV), normalize.New(normalize.DefaultOptions()))
	require.NoError(t, err)
	return tb.Schema
}

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		state   constants.LoopState
		passed  bool
		attempt int
		want    constants.LoopState
	}{
		{"plan", constants.StatePlanning, false, 0, constants.StateGenerating},
		{"generate", constants.StateGenerating, false, 1, constants.StateVerifying},
		{"pass", constants.StateVerifying, true, 1, constants.StateSucceeded},
		{"pass on last", constants.StateVerifying, true, 3, constants.StateSucceeded},
		{"retry", constants.StateVerifying, false, 2, constants.StateGenerating},
		{"exhausted", constants.StateVerifying, false, 3, constants.StateFailed},
		{"terminal stays", constants.StateFailed, false, 3, constants.StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Next(tt.state, tt.passed, tt.attempt, 3))
		})
	}
}

func TestRunSucceedsFirstIteration(t *testing.T) {
	f := newFixture(t, truthCSV)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.Source == "acme" && !r.Refining() && len(r.TruthCSV) > 0 && strings.Contains(r.DocumentText, "Salary")
	})).Return(parser.NewProgram("acme", truthSchema(t)), nil).Once()

	out, err := f.agent(gen, 3).Run(context.Background(), f.target)
	require.NoError(t, err)
	gen.AssertExpectations(t)

	assert.Equal(t, constants.StateSucceeded, out.State)
	require.Len(t, out.Iterations, 1)
	assert.True(t, out.Iterations[0].Result.Passed)
	assert.NotEmpty(t, out.Iterations[0].ExtractorID)
	assert.Equal(t, f.store.Path("acme"), out.ParserPath)
	assert.FileExists(t, out.ParserPath)
	assert.Empty(t, out.Artifacts)
	assert.NoDirExists(t, f.debug)

	stored, err := f.store.Load("acme")
	require.NoError(t, err)
	assert.Equal(t, out.Iterations[0].ExtractorID, parser.Identity(stored))
}

func TestRunExhaustsBudget(t *testing.T) {
	f := newFixture(t, truthCSV)
	p := parser.NewProgram("acme", truthSchema(t))
	p.DatePatterns = llm.MonthFirstDatePatterns

	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(p, nil).Times(3)

	out, err := f.agent(gen, 3).Run(context.Background(), f.target)
	require.Error(t, err)
	gen.AssertExpectations(t)

	var be *BudgetExhaustedError
	require.ErrorAs(t, err, &be)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.False(t, common.IsEnvironment(err))
	assert.Equal(t, 3, be.Attempts)
	assert.Equal(t, constants.StateFailed, out.State)
	require.Len(t, out.Iterations, 3)

	require.NotNil(t, be.Last)
	require.Len(t, be.Last.Mismatches, 3)
	for i, m := range be.Last.Mismatches {
		assert.Equal(t, verify.KindValue, m.Kind)
		assert.Equal(t, i, m.Row)
		assert.Equal(t, "Date", m.Field)
	}
	require.Len(t, be.Artifacts, 2)
	for _, a := range be.Artifacts {
		assert.FileExists(t, a)
	}
	assert.Equal(t, be.Artifacts, out.Artifacts)

	for i, c := range gen.Calls {
		req := c.Arguments.Get(1).(llm.Request)
		if i == 0 {
			assert.False(t, req.Refining())
			continue
		}
		assert.True(t, req.Refining(), "attempt %d carries the diagnostic", i+1)
		assert.False(t, req.Diagnostic.Passed)
	}
}

func TestRunTemplateRefinesDateOrder(t *testing.T) {
	f := newFixture(t, monthFirstCSV)
	gen := llm.NewTemplateGenerator(normalize.DefaultOptions(), 0, nil)

	out, err := f.agent(gen, 3).Run(context.Background(), f.target)
	require.NoError(t, err)
	assert.Equal(t, constants.StateSucceeded, out.State)
	require.Len(t, out.Iterations, 2)
	assert.False(t, out.Iterations[0].Result.Passed)
	assert.True(t, out.Iterations[1].Result.Passed)
	assert.Equal(t, llm.MonthFirstDatePatterns, out.Iterations[1].Program.DatePatterns)
	assert.NotEqual(t, out.Iterations[0].ExtractorID, out.Iterations[1].ExtractorID)
}

func TestRunGeneratorErrorCountsAsIteration(t *testing.T) {
	f := newFixture(t, truthCSV)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("model returned garbage")).Once()
	gen.On("Generate", mock.Anything, mock.Anything).Return(parser.NewProgram("acme", truthSchema(t)), nil).Once()

	out, err := f.agent(gen, 3).Run(context.Background(), f.target)
	require.NoError(t, err)
	gen.AssertExpectations(t)
	require.Len(t, out.Iterations, 2)

	first := out.Iterations[0]
	assert.Empty(t, first.ExtractorID)
	require.Len(t, first.Result.Mismatches, 1)
	assert.Equal(t, verify.KindSchema, first.Result.Mismatches[0].Kind)
	assert.Contains(t, first.Result.ExtractorError, "model returned garbage")
	assert.True(t, out.Iterations[1].Result.Passed)
}

func TestRunGeneratorErrorsExhaustBudget(t *testing.T) {
	f := newFixture(t, truthCSV)
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, llm.ErrGeneration).Times(2)

	out, err := f.agent(gen, 2).Run(context.Background(), f.target)
	require.ErrorIs(t, err, ErrBudgetExhausted)
	gen.AssertExpectations(t)
	assert.Len(t, out.Iterations, 2)
	assert.Empty(t, out.ParserPath)
}

func TestRunEnvironmentErrors(t *testing.T) {
	t.Run("missing truth", func(t *testing.T) {
		f := newFixture(t, truthCSV)
		require.NoError(t, os.Remove(f.target.TruthPath))
		gen := new(MockGenerator)

		_, err := f.agent(gen, 3).Run(context.Background(), f.target)
		require.Error(t, err)
		assert.True(t, common.IsEnvironment(err))
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})
	t.Run("missing document", func(t *testing.T) {
		f := newFixture(t, truthCSV)
		require.NoError(t, os.Remove(f.target.DocumentPath))
		gen := new(MockGenerator)

		_, err := f.agent(gen, 3).Run(context.Background(), f.target)
		assert.True(t, common.IsEnvironment(err))
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})
	t.Run("generator environment error", func(t *testing.T) {
		f := newFixture(t, truthCSV)
		gen := new(MockGenerator)
		gen.On("Generate", mock.Anything, mock.Anything).
			Return(nil, common.EnvironmentError("no api key", nil)).Once()

		out, err := f.agent(gen, 3).Run(context.Background(), f.target)
		assert.True(t, common.IsEnvironment(err))
		assert.Equal(t, constants.StateFailed, out.State)
		assert.Empty(t, out.Iterations)
	})
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, truthCSV)
	gen := new(MockGenerator)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.agent(gen, 3).Run(ctx, f.target)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, constants.StateFailed, out.State)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRunCancelledAfterGeneration(t *testing.T) {
	f := newFixture(t, truthCSV)
	ctx, cancel := context.WithCancel(context.Background())
	p := parser.NewProgram("acme", truthSchema(t))
	p.DatePatterns = llm.MonthFirstDatePatterns

	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(p, nil).Once()

	out, err := f.agent(gen, 3).Run(ctx, f.target)
	require.ErrorIs(t, err, context.Canceled)
	gen.AssertExpectations(t)
	require.Len(t, out.Iterations, 1)
	assert.Nil(t, out.Iterations[0].Result, "the loop stops before verifying")
}

func TestRunReusesStoredProgram(t *testing.T) {
	f := newFixture(t, truthCSV)
	_, err := f.store.Save(parser.NewProgram("acme", truthSchema(t)))
	require.NoError(t, err)

	gen := new(MockGenerator)
	v := verify.New(verify.Config{DebugDir: f.debug}, nil, nil)
	a := New(gen, v, f.store, Options{MaxIterations: 3, Reuse: true}, nil)

	out, err := a.Run(context.Background(), f.target)
	require.NoError(t, err)
	assert.Len(t, out.Iterations, 1)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRunRecordsAuditTrail(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	runs := repository.NewRunRepository(db, nil)

	f := newFixture(t, monthFirstCSV)
	gen := llm.NewTemplateGenerator(normalize.DefaultOptions(), 0, nil)
	out, err := f.agent(gen, 3).WithRepository(runs).Run(ctx, f.target)
	require.NoError(t, err)

	run, err := runs.GetRun(ctx, out.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(constants.StateSucceeded), run.State)
	assert.Len(t, run.DocumentHash, 64)

	its, err := runs.ListIterations(ctx, out.RunID)
	require.NoError(t, err)
	require.Len(t, its, 2)
	assert.False(t, its[0].Passed)
	assert.Equal(t, 3, its[0].Mismatches)
	assert.True(t, its[1].Passed)
	assert.NotEmpty(t, its[1].Program)
}

func TestBudgetExhaustedError(t *testing.T) {
	err := &BudgetExhaustedError{Source: "acme", Attempts: 3, Last: &verify.Result{Mismatches: make([]verify.Mismatch, 4)}}
	assert.Equal(t, "acme: no passing extractor after 3 iterations (4 mismatches remain)", err.Error())
	assert.ErrorIs(t, err, ErrBudgetExhausted)
}
