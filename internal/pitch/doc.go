// Package pitch maps note head boxes on a staff to note names and MIDI keys.
//
// The vertical unit is half the spacing of the first two staff lines. Step 0
// lies one unit below the second line (C5 on a treble staff) and steps grow
// downward. A fixed table covers steps -8 (D6) to 10 (G3); anything outside it
// is dropped as a misdetection rather than reported as an error.
package pitch
