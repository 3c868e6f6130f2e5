package tokenizer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testVocab builds a vocab.txt with the special tokens first, so their IDs
// are stable: [PAD]=0, [UNK]=1, [CLS]=2, [SEP]=3.
func testVocab(t *testing.T, extra ...string) *Vocab {
	t.Helper()

	tokens := append([]string{"[PAD]", "[UNK]", "[CLS]", "[SEP]"}, extra...)
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(tokens, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write vocab: %v", err)
	}

	v, err := LoadVocab(path)
	if err != nil {
		t.Fatalf("LoadVocab failed: %v", err)
	}
	return v
}

func TestLoadVocab(t *testing.T) {
	t.Run("SpecialTokenIDs", func(t *testing.T) {
		v := testVocab(t, "hello", "world")
		if v.padID != 0 || v.unkID != 1 || v.clsID != 2 || v.sepID != 3 {
			t.Errorf("unexpected special IDs: pad=%d unk=%d cls=%d sep=%d",
				v.padID, v.unkID, v.clsID, v.sepID)
		}
		if v.Size() != 6 {
			t.Errorf("Size() = %d, want 6", v.Size())
		}
		if v.ID("hello") != 4 {
			t.Errorf("ID(hello) = %d, want 4", v.ID("hello"))
		}
		if v.ID("missing") != v.unkID {
			t.Errorf("unknown token should map to [UNK]")
		}
	})

	t.Run("MissingSpecialToken", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vocab.txt")
		if err := os.WriteFile(path, []byte("hello\nworld\n"), 0644); err != nil {
			t.Fatalf("failed to write vocab: %v", err)
		}
		if _, err := LoadVocab(path); err == nil {
			t.Fatal("expected error for vocab without special tokens")
		}
	})
}

func TestEncodeBatch(t *testing.T) {
	v := testVocab(t, "this", "is", "a", "test", "sentence", ".", "short")
	tok := NewWithVocab(v, DefaultOptions())

	t.Run("Framing", func(t *testing.T) {
		batch, err := tok.EncodeBatch([]string{"this is a test"})
		if err != nil {
			t.Fatalf("EncodeBatch failed: %v", err)
		}
		if batch.Size != 1 {
			t.Fatalf("Size = %d, want 1", batch.Size)
		}
		// [CLS] this is a test [SEP]
		want := []int64{2, 4, 5, 6, 7, 3}
		if batch.SeqLen != len(want) {
			t.Fatalf("SeqLen = %d, want %d", batch.SeqLen, len(want))
		}
		for i, id := range want {
			if batch.InputIDs[i] != id {
				t.Errorf("InputIDs[%d] = %d, want %d", i, batch.InputIDs[i], id)
			}
			if batch.AttentionMask[i] != 1 {
				t.Errorf("AttentionMask[%d] = %d, want 1", i, batch.AttentionMask[i])
			}
		}
	})

	t.Run("PadsToLongest", func(t *testing.T) {
		batch, err := tok.EncodeBatch([]string{"this is a test sentence .", "short"})
		if err != nil {
			t.Fatalf("EncodeBatch failed: %v", err)
		}
		if batch.Size != 2 {
			t.Fatalf("Size = %d, want 2", batch.Size)
		}
		if batch.SeqLen != 8 { // [CLS] + 6 tokens + [SEP]
			t.Fatalf("SeqLen = %d, want 8", batch.SeqLen)
		}

		// Second sequence is [CLS] short [SEP] followed by padding.
		off := batch.SeqLen
		realTokens := 0
		for i := 0; i < batch.SeqLen; i++ {
			if batch.AttentionMask[off+i] == 1 {
				realTokens++
			} else if batch.InputIDs[off+i] != 0 {
				t.Errorf("padding position %d has id %d, want [PAD]=0", i, batch.InputIDs[off+i])
			}
		}
		if realTokens != 3 {
			t.Errorf("real tokens = %d, want 3", realTokens)
		}
	})

	t.Run("UnknownWordsMapToUNK", func(t *testing.T) {
		batch, err := tok.EncodeBatch([]string{"zzyzx"})
		if err != nil {
			t.Fatalf("EncodeBatch failed: %v", err)
		}
		if batch.InputIDs[1] != 1 {
			t.Errorf("InputIDs[1] = %d, want [UNK]=1", batch.InputIDs[1])
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		_, err := tok.EncodeBatch(nil)
		if !errors.Is(err, ErrEmptyBatch) {
			t.Errorf("error = %v, want ErrEmptyBatch", err)
		}
	})

	t.Run("Truncation", func(t *testing.T) {
		short := NewWithVocab(v, Options{MaxLength: 5, Padding: true, Truncation: true})
		batch, err := short.EncodeBatch([]string{"this is a test sentence ."})
		if err != nil {
			t.Fatalf("EncodeBatch failed: %v", err)
		}
		if batch.SeqLen != 5 {
			t.Errorf("SeqLen = %d, want 5", batch.SeqLen)
		}
		if batch.InputIDs[4] != 3 {
			t.Errorf("last token = %d, want [SEP]=3", batch.InputIDs[4])
		}
	})

	t.Run("TruncationDisabled", func(t *testing.T) {
		strict := NewWithVocab(v, Options{MaxLength: 5, Padding: true, Truncation: false})
		if _, err := strict.EncodeBatch([]string{"this is a test sentence ."}); err == nil {
			t.Error("expected error for over-length sequence with truncation disabled")
		}
	})

	t.Run("PaddingDisabledRaggedBatch", func(t *testing.T) {
		strict := NewWithVocab(v, Options{MaxLength: 128, Padding: false, Truncation: true})
		_, err := strict.EncodeBatch([]string{"this is a test", "short"})
		if !errors.Is(err, ErrPaddingRequired) {
			t.Errorf("error = %v, want ErrPaddingRequired", err)
		}
	})
}

func TestBasicTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"Lowercasing", "Hello World", []string{"hello", "world"}},
		{"Punctuation", "test.", []string{"test", "."}},
		{"Accents", "café", []string{"cafe"}},
		{"Whitespace", "  a \t b\n", []string{"a", "b"}},
		{"CJK", "ab世c", []string{"ab", "世", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := basicTokenize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("basicTokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestWordpiece(t *testing.T) {
	v := testVocab(t, "un", "##aff", "##able", "play", "##ing")
	tok := NewWithVocab(v, DefaultOptions())

	t.Run("Subwords", func(t *testing.T) {
		got := tok.wordpiece([]string{"unaffable", "playing"})
		want := []string{"un", "##aff", "##able", "play", "##ing"}
		if len(got) != len(want) {
			t.Fatalf("wordpiece = %v, want %v", got, want)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("subword[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("NoDecomposition", func(t *testing.T) {
		got := tok.wordpiece([]string{"xyz"})
		if len(got) != 1 || got[0] != "[UNK]" {
			t.Errorf("wordpiece(xyz) = %v, want [UNK]", got)
		}
	})
}
