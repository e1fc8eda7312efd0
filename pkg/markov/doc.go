/*
Package markov builds variable-order Markov models over note sequences and
samples new sequences from them.

A Model is built once from a training sequence and an order n. Each context
(the n notes preceding a position) maps to the notes observed after it,
together with their counts and probabilities. Models are immutable after
Build and may be shared between goroutines; every sampling call takes its
own *rand.Rand so that output is reproducible for a given seed value.

The package is generic over the note symbol: anything comparable works,
from pitch names to MIDI keys to note durations.
*/
package markov
