// Package midi turns recognized notes into a Standard MIDI File.
//
// Notes are played one after another on a single track and channel at a
// fixed tempo and velocity. A note without a duration is held for
// DefaultBeats.
package midi
