package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeDataset(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		file string
		want Format
	}{
		{"data.csv", FormatCSV},
		{"data.parquet", FormatParquet},
		{"data.json", FormatJSON},
		{"data.jsonl", FormatJSON},
		{"data.txt", FormatCSV},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.file); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.file, got, tt.want)
		}
	}
}

func TestLoadCSV(t *testing.T) {
	loader := NewLoader(&Config{BatchSize: 2, ValidateData: true, Classes: 2}, zap.NewNop())

	t.Run("ValidFile", func(t *testing.T) {
		path := writeDataset(t, "data.csv",
			"text,label_text,label\n"+
				"good morning,positive,1\n"+
				"bad service,negative,0\n"+
				"great product,positive,true\n")

		records, err := loader.Load(context.Background(), path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		if records[0].Text != "good morning" || records[0].Label != 1 {
			t.Errorf("record 0 = %+v", records[0])
		}
		if records[2].Label != 1 {
			t.Errorf("boolean label should parse to 1, got %d", records[2].Label)
		}
	})

	t.Run("SkipsInvalidRecords", func(t *testing.T) {
		path := writeDataset(t, "data.csv",
			"text,label_text,label\n"+
				",positive,1\n"+
				"valid text,negative,0\n"+
				"out of range,negative,9\n")

		records, err := loader.Load(context.Background(), path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("got %d records, want 1", len(records))
		}
		if records[0].Text != "valid text" {
			t.Errorf("kept record = %+v", records[0])
		}
	})

	t.Run("EmptyFileFails", func(t *testing.T) {
		path := writeDataset(t, "data.csv", "text,label_text,label\n")
		if _, err := loader.Load(context.Background(), path); err == nil {
			t.Error("expected error for dataset with no valid records")
		}
	})
}

func TestLoadJSON(t *testing.T) {
	loader := NewLoader(&Config{BatchSize: 10, ValidateData: true}, zap.NewNop())

	path := writeDataset(t, "data.jsonl",
		`{"text":"hello there","label_text":"greeting","label":0}`+"\n"+
			`{"text":"goodbye now","label_text":"farewell","label":1}`+"\n")

	records, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1].LabelText != "farewell" {
		t.Errorf("record 1 = %+v", records[1])
	}
}

func TestReadBatches(t *testing.T) {
	loader := NewLoader(&Config{BatchSize: 2, ValidateData: false}, zap.NewNop())

	path := writeDataset(t, "data.csv",
		"text,label_text,label\n"+
			"one,a,0\ntwo,a,0\nthree,b,1\nfour,b,1\nfive,a,0\n")

	var sizes []int
	err := loader.ReadBatches(context.Background(), path, func(batch []Record) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadBatches failed: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("batch sizes = %v, want [2 2 1]", sizes)
	}
}

func TestShuffle(t *testing.T) {
	base := func() []Record {
		records := make([]Record, 50)
		for i := range records {
			records[i] = Record{Text: string(rune('a' + i%26)), Label: i}
		}
		return records
	}

	a, b := base(), base()
	Shuffle(a, 42)
	Shuffle(b, 42)
	for i := range a {
		if a[i].Label != b[i].Label {
			t.Fatal("same seed must produce the same permutation")
		}
	}

	c := base()
	Shuffle(c, 43)
	same := true
	for i := range a {
		if a[i].Label != c[i].Label {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds should permute differently")
	}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"1", 1, false},
		{"3", 3, false},
		{"true", 1, false},
		{"false", 0, false},
		{" 2 ", 2, false},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLabel(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLabel(%q) expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLabel(%q) failed: %v", tt.raw, err)
		} else if got != tt.want {
			t.Errorf("parseLabel(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
