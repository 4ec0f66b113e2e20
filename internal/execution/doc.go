// Package execution walks a parsed AIR script against the merged trace of
// one turn.
//
// The executor is a single-threaded recursive interpreter. It never blocks:
// a call to another peer is recorded as a RequestSentBy state and the peer
// is added to the next peers, a local call is handed to the host as a call
// request, and in both cases the enclosing subgraph is left incomplete.
// When a later turn brings the result back, the trace handler replays the
// states already executed and the executor resumes where it stopped.
//
// Errors come in two classes. A CatchableError can be handled by xor and is
// visible to the script through %last_error% and :error:. An
// UncatchableError aborts the turn; the interpreter then hands back the
// incoming data unchanged.
//
// Scalars live in a stack of frames: every fold iteration and every new
// over a scalar pushes one. Streams keep a stack of instances per name; the
// bottom instance is global and is compactified when the turn ends.
package execution
