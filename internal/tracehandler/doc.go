// Package tracehandler merges the previous and current traces of a particle
// while the executor replays a script, and builds the result trace.
//
// The handler owns two sliders, one per input trace. A slider is a window
// (position, remaining length) over its trace; reading a state advances the
// window. Control constructs narrow the windows: a par splits them into the
// left and right subtrees, a fold iteration points them at the ranges its
// lore recorded. Every committed state records where it came from in each
// input so that later fold iterations can find their lore again. Closing a
// par subtree or a fold iteration fails when an input cursor stops short of
// the recorded end.
//
// The executor drives the handler through Meet* calls:
//
//	MeetParStart / MeetParSubtreeEnd(Left|Right)
//	MeetCallStart / MeetCallEnd
//	MeetApStart / MeetApEnd
//	MeetCanonStart / MeetCanonEnd
//	MeetFoldStart / MeetIterationStart / MeetNextStart / MeetNextEnd /
//	MeetIterationEnd / MeetFoldEnd
//
// and finally UpdateGeneration during stream compactification and
// ResultTrace to take the committed trace.
package tracehandler
