/*
Package markov implements a variable-order Markov "seed" model: it learns the
depth-bounded structure of a corpus of example sequences and generates new
sequences whose every window of up to depth atoms was observed in training.

Training records every window of every length up to the model depth in a
context tree, together with how often it occurred. Generation walks that tree
using the most recent depth-1 atoms as context and draws the next atom in
proportion to the recorded counts, until the end sentinel is drawn.

Models can be trained from raw atom sequences or from text through a
Tokenizer, exported to and merged from JSON snapshots, and wrapped in a
Generator for use with the generator package lifecycle.
*/
package markov
