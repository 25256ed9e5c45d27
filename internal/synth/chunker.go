package synth

// Fragment is a bounded slice of a sentence's phoneme sequence. Pause
// marks a sentence boundary where the worker inserts silence.
type Fragment struct {
	Phonemes []string
	Pause    bool
}

// BuildFragments bounds every sentence to maxLen phonemes. Long
// sentences are split so that no single inference call can consume
// unbounded memory; each split keeps the original sequence intact, so
// concatenating fragment audio reproduces the full sentence.
func BuildFragments(sentences [][]string, maxLen int) []Fragment {
	var out []Fragment
	for _, sentence := range sentences {
		if len(sentence) == 0 {
			continue
		}
		if len(sentence) <= maxLen {
			out = append(out, Fragment{Phonemes: sentence, Pause: true})
			continue
		}
		parts := splitLong(sentence, maxLen)
		for i, part := range parts {
			out = append(out, Fragment{Phonemes: part, Pause: i == len(parts)-1})
		}
	}
	return out
}

// splitLong cuts one over-long phoneme sequence into pieces of at most
// maxLen. Within each window the preferred cut is after the last comma
// (preserves prosody), then after the last space, then a hard cut at
// the window edge. The hard cut guarantees a bound even for a single
// enormous word with no punctuation.
func splitLong(phonemes []string, maxLen int) [][]string {
	var parts [][]string
	start := 0
	for len(phonemes)-start > maxLen {
		end := start + maxLen
		cut := -1
		for i := end - 1; i > start; i-- {
			if phonemes[i] == "," {
				cut = i + 1
				break
			}
		}
		if cut < 0 {
			for i := end - 1; i > start; i-- {
				if phonemes[i] == " " {
					cut = i + 1
					break
				}
			}
		}
		if cut < 0 {
			cut = end
		}
		parts = append(parts, phonemes[start:cut])
		start = cut
	}
	if start < len(phonemes) {
		parts = append(parts, phonemes[start:])
	}
	return parts
}
