package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Konsultn-Engineering/stormweaver/database"
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

type recordingAction struct {
	name string
	log  *[]string
	fail error
}

func (a *recordingAction) Execute(*metadata.Metadata, *random.Random, database.Client) error {
	*a.log = append(*a.log, a.name)
	return a.fail
}

func TestCompositeRunsInOrder(t *testing.T) {
	var log []string
	c := NewComposite(nil,
		&recordingAction{name: "first", log: &log},
		&recordingAction{name: "second", log: &log},
		&recordingAction{name: "third", log: &log})

	require.NoError(t, c.Execute(metadata.New(), random.New(1), &fakeClient{}))
	assert.Equal(t, []string{"first", "second", "third"}, log)
}

func TestCompositeStopsOnFailure(t *testing.T) {
	var log []string
	boom := NewError("boom", "failed")
	c := NewComposite(nil,
		&recordingAction{name: "first", log: &log},
		&recordingAction{name: "second", log: &log, fail: boom},
		&recordingAction{name: "third", log: &log})

	err := c.Execute(metadata.New(), random.New(1), &fakeClient{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, log)
}

func TestRepeatRunsNTimes(t *testing.T) {
	var log []string
	r := NewRepeat(&recordingAction{name: "tick", log: &log}, 5)

	require.NoError(t, r.Execute(metadata.New(), random.New(1), &fakeClient{}))
	assert.Len(t, log, 5)
}

func TestCreateThenInsertComposite(t *testing.T) {
	cat := metadata.New()
	conn := &fakeClient{}

	factory := createTableFactory("create_normal_table", metadata.TableNormal)
	act := factory.Build(DefaultConfig())

	require.NoError(t, act.Execute(cat, random.New(21), conn))

	require.Equal(t, 1, cat.Size())
	created := cat.Get(0)

	// The follow-up insert targets the table the create just produced.
	require.GreaterOrEqual(t, len(conn.queries), 2)
	last := conn.queries[len(conn.queries)-1]
	assert.Contains(t, last, "INSERT INTO "+created.Name)
}
