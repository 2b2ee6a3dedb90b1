// Package classify assigns note durations to merged note head symbols.
//
// A Classifier is injected into the pipeline. DNNClassifier runs an exported
// model through gocv's DNN module; FixedClassifier returns one duration for
// every symbol and is what tests and the -duration flag use.
//
// # Patches
//
// The model sees more than the note head: the symbol box is widened by its
// width on each side and stretched to the full staff height so stems, flags
// and beams are in view, then resized to 96×96 without keeping aspect ratio.
package classify
