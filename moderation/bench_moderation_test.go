package moderation

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// Test_Moderation_Startup measures how long a large dictionary takes to get
// from a badger keyspace to a ready automaton.
func Test_Moderation_Startup(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	wordCount := 20_000

	startSeed := time.Now()
	wb := db.NewWriteBatch()
	for i := 0; i < wordCount; i++ {
		req.NoError(wb.Set([]byte("censored:"+syntheticWord(i)), nil))
	}
	req.NoError(wb.Flush())
	t.Logf("Seeding %d words: %v", wordCount, time.Since(startSeed))

	startLoad := time.Now()
	var words []string
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		// Words live in the keys
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("censored:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			words = append(words, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	req.NoError(err)
	req.Len(words, wordCount)
	t.Logf("Loading from badger: %v", time.Since(startLoad))

	startBuild := time.Now()
	mod, err := NewModerator(words, '*', slog.Default())
	req.NoError(err)
	t.Logf("Building automaton: %v", time.Since(startBuild))

	content, found := mod.Censor("hello censoraaab and censorabcd")
	req.Equal([]string{"censoraaab", "censorabcd"}, found)
	req.Equal("hello ********** and **********", content)
}

// syntheticWord spells i in base 26 with a fixed width, so no word is a prefix of another.
func syntheticWord(i int) string {
	suffix := make([]byte, 4)
	for pos := len(suffix) - 1; pos >= 0; pos-- {
		suffix[pos] = byte('a' + i%26)
		i /= 26
	}
	return "censor" + string(suffix)
}

func BenchmarkModerator_Censor(b *testing.B) {
	mod, err := NewModerator([]string{"badger", "snake", "mushroom"}, '*', slog.Default())
	if err != nil {
		b.Fatal(err)
	}
	input := strings.Repeat("The quick b4dg3r jumps over the lazy snake. ", 20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mod.Censor(input)
	}
}
