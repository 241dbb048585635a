package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		name    string
		doc     string
		tables  int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"whitespace", "  \n", 0, false},
		{"null", "null", 0, false},
		{"tilde", "~", 0, false},
		{"false", "false", 0, false},
		{"no_last_records", "other: 1", 0, false},
		{"null_last_records", "last_records:", 0, false},
		{"one_table", "last_records:\n  messages:\n    id: 3\n", 1, false},
		{"true", "true", 0, true},
		{"list", "- a\n- b\n", 0, true},
		{"scalar", "42", 0, true},
		{"malformed", "last_records: [unclosed", 0, true},
		{"last_records_list", "last_records:\n  - messages\n", 0, true},
		{"table_scalar", "last_records:\n  messages: 3\n", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := Decode([]byte(tc.doc))
			if tc.wantErr {
				assert.ErrorIs(t, err, constants.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, tc.tables)
		})
	}
}

func TestEncodeDecodeKinds(t *testing.T) {
	ts := time.Date(2011, 1, 2, 13, 14, 15, 0, time.UTC)
	in := map[string]types.Row{
		"messages": {"updated_at": types.Timestamp(ts)},
		"counters": {"id": types.Int(42)},
		"names":    {"name": types.Text("zeta")},
	}

	data, err := Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "last_records:")

	out, err := Decode(data)
	require.NoError(t, err)
	// typing is left to the cursor, which knows the column type
	assert.Equal(t, types.KindText, out["messages"]["updated_at"].Kind())
	assert.Equal(t, "2011-01-02T13:14:15Z", out["messages"]["updated_at"].Text())
	assert.Equal(t, types.KindInt, out["counters"]["id"].Kind())
	assert.Equal(t, int64(42), out["counters"]["id"].Int())
	assert.Equal(t, "zeta", out["names"]["name"].Text())
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "sql_state")

	store, err := OpenFile(path, zerolog.Nop())
	require.NoError(t, err)
	_, found := store.Get("messages")
	assert.False(t, found)

	store.Set("messages", types.Row{"id": types.Int(7)})
	require.NoError(t, store.Flush(ctx))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	reopened, err := OpenFile(path, zerolog.Nop())
	require.NoError(t, err)
	row, found := reopened.Get("messages")
	require.True(t, found)
	assert.Equal(t, int64(7), row["id"].Int())

	// snapshots are copies
	row["id"] = types.Int(100)
	again, _ := reopened.Get("messages")
	assert.Equal(t, int64(7), again["id"].Int())
	assert.Len(t, reopened.Snapshot(), 1)
}

func TestFileStoreOpenErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	store, err := OpenFile(empty, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot())

	malformed := filepath.Join(dir, "malformed")
	require.NoError(t, os.WriteFile(malformed, []byte("last_records: {"), 0o644))
	_, err = OpenFile(malformed, zerolog.Nop())
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	list := filepath.Join(dir, "list")
	require.NoError(t, os.WriteFile(list, []byte("- 1\n"), 0o644))
	_, err = OpenFile(list, zerolog.Nop())
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	_, err = OpenFile("", zerolog.Nop())
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	_, err = OpenFile(dir, zerolog.Nop())
	assert.ErrorIs(t, err, constants.ErrStateIO)
}

func TestFileStoreFlushError(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "state")
	store, err := OpenFile(filepath.Join(stateDir, "sql_state"), zerolog.Nop())
	require.NoError(t, err)
	store.Set("messages", types.Row{"id": types.Int(1)})

	// the state directory is replaced by a plain file after open
	require.NoError(t, os.WriteFile(stateDir, nil, 0o644))

	err = store.Flush(context.Background())
	assert.ErrorIs(t, err, constants.ErrStateIO)

	// the in-memory value survives a failed flush
	row, found := store.Get("messages")
	require.True(t, found)
	assert.Equal(t, int64(1), row["id"].Int())
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(zerolog.Nop())
	store.Set("messages", types.Row{"id": types.Int(1)})
	require.NoError(t, store.Flush(context.Background()))
	row, found := store.Get("messages")
	require.True(t, found)
	assert.Equal(t, int64(1), row["id"].Int())
	assert.NoError(t, store.Close())
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	putErr  error
	puts    int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, found := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !found {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{}}

	store, err := OpenS3(ctx, client, "sqlstream-test12345", "sql.state", zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, store.Snapshot())

	store.Set("messages", types.Row{"id": types.Int(3)})
	require.NoError(t, store.Flush(ctx))
	assert.Equal(t, 1, client.puts)

	reopened, err := OpenS3(ctx, client, "sqlstream-test12345", "sql.state", zerolog.Nop())
	require.NoError(t, err)
	row, found := reopened.Get("messages")
	require.True(t, found)
	assert.Equal(t, int64(3), row["id"].Int())

	// an object created empty is tolerated
	client.objects["bucket/empty"] = []byte{}
	_, err = OpenS3(ctx, client, "bucket", "empty", zerolog.Nop())
	require.NoError(t, err)

	client.objects["bucket/bad"] = []byte("- nope")
	_, err = OpenS3(ctx, client, "bucket", "bad", zerolog.Nop())
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	_, err = OpenS3(ctx, client, "", "key", zerolog.Nop())
	assert.ErrorIs(t, err, constants.ErrConfiguration)

	client.putErr = errors.New("access denied")
	assert.ErrorIs(t, reopened.Flush(ctx), constants.ErrStateIO)

	client.getErr = errors.New("access denied")
	_, err = OpenS3(ctx, client, "sqlstream-test12345", "sql.state", zerolog.Nop())
	assert.ErrorIs(t, err, constants.ErrStateIO)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, &Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	config := &Config{Path: filepath.Join(t.TempDir(), "state.yml")}
	store, err = Open(ctx, config, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, constants.FileState, config.Type)
	assert.IsType(t, &FileStore{}, store)

	for _, invalid := range []*Config{
		{Type: constants.FileState},
		{Type: constants.S3State, S3Config: S3Config{Bucket: "state"}},
		{Type: "redis"},
	} {
		_, err := Open(ctx, invalid, zerolog.Nop())
		assert.ErrorIs(t, err, constants.ErrConfiguration)
	}
}
