package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token IDs of the uncased BERT vocabulary.
const (
	clsTokenID = 101
	sepTokenID = 102
	unkTokenID = 100
)

// Tokenizer is a lower-casing WordPiece tokenizer over a BERT vocabulary.
type Tokenizer struct {
	vocab map[string]int
	cls   int64
	sep   int64
	unk   int64
}

// LoadTokenizer reads the vocabulary from a HuggingFace tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}

	return NewTokenizer(file.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer over vocab. Special tokens are looked up
// by name and fall back to the standard BERT IDs.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	lookup := func(token string, fallback int) int64 {
		if id, ok := vocab[token]; ok {
			return int64(id)
		}
		return int64(fallback)
	}
	return &Tokenizer{
		vocab: vocab,
		cls:   lookup("[CLS]", clsTokenID),
		sep:   lookup("[SEP]", sepTokenID),
		unk:   lookup("[UNK]", unkTokenID),
	}
}

// Tokenize converts text to WordPiece token IDs, without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, unicode.IsPunct)
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// Encode frames the tokens of text with [CLS] and [SEP], truncating to
// maxLen, and returns the IDs with the matching attention mask, both padded
// to maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)

	ids[0], mask[0] = t.cls, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sep, 1

	return ids, mask
}

// wordPiece splits word greedily into the longest vocabulary prefixes.
func (t *Tokenizer) wordPiece(word string) []int64 {
	var ids []int64
	for start := 0; start < len(word); {
		end := len(word)
		matched := false
		for ; end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			ids = append(ids, t.unk)
			end = start + 1
		}
		start = end
	}
	return ids
}
