// Package accuracy scores recognized text against a known reference.
package accuracy

import (
	"math"
	"strings"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// Normalize lowercases s and collapses whitespace runs into single spaces
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// CER is the character error rate: edit distance over reference length
func CER(reference, hypothesis string) float64 {
	ref, hyp := Normalize(reference), Normalize(hypothesis)
	n := len([]rune(ref))
	if n == 0 {
		if hyp == "" {
			return 0
		}
		return 1
	}
	return float64(levenshtein.Distance(ref, hyp)) / float64(n)
}

// WER is the word error rate over whitespace-separated tokens
func WER(reference, hypothesis string) float64 {
	ref := strings.Fields(Normalize(reference))
	hyp := strings.Fields(Normalize(hypothesis))
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 0
		}
		return 1
	}
	rate, _ := wer.WER(ref, hyp)
	return rate
}

// Compare computes both rates, rounded to four decimals
func Compare(reference, hypothesis string) models.Accuracy {
	return models.Accuracy{
		WER: round4(WER(reference, hypothesis)),
		CER: round4(CER(reference, hypothesis)),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
