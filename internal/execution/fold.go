package execution

import (
	"fmt"
	"strconv"

	"github.com/fluencelabs/aquavm-sub001/internal/air"
	"github.com/fluencelabs/aquavm-sub001/internal/ir"
	"github.com/fluencelabs/aquavm-sub001/internal/stream"
	"github.com/fluencelabs/aquavm-sub001/internal/trace"
)

// foldItem is one value a fold iterates over.
type foldItem struct {
	value      ir.Value
	tetraplet  ir.Tetraplet
	provenance ir.Provenance

	// pos is the trace position that wrote a stream value.
	pos trace.Pos
}

// foldState tracks one active fold. next moves idx through items.
type foldState struct {
	fold  air.Fold
	items []foldItem
	idx   int

	// id is set for stream folds, which record their iterations in the trace.
	id     uint32
	stream bool

	// exhausted is set once next was called on the last item.
	exhausted bool
}

func (e *Executor) pushFold(st *foldState) {
	name := st.fold.Iterator
	e.folds[name] = append(e.folds[name], st)
}

func (e *Executor) popFold(name string) {
	stack := e.folds[name]
	e.folds[name] = stack[:len(stack)-1]
}

func (e *Executor) fold(f air.Fold) (bool, error) {
	switch it := f.Iterable.(type) {
	case air.Stream:
		return e.foldStream(f, e.streams.stream(it.Name))
	case air.StreamMap:
		return e.foldStream(f, e.streams.streamMap(it.Name).Stream())
	}

	r, ok, err := e.resolveValue(f.Iterable)
	if err != nil || !ok {
		return false, err
	}
	items, err := e.foldItems(f.Iterable, r)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return e.foldLast(f)
	}

	st := &foldState{fold: f, items: items}
	e.pushFold(st)
	defer e.popFold(f.Iterator)

	complete, err := e.iterate(st)
	if err != nil || !complete || !st.exhausted {
		return complete, err
	}
	return e.foldLast(f)
}

// foldItems splits an iterable into items. Elements of canons and array
// literals keep their own tetraplets; elements of a scalar array get the
// scalar's tetraplet extended with their index.
func (e *Executor) foldItems(iterable air.Value, r resolved) ([]foldItem, error) {
	arr, ok := r.value.(ir.Array)
	if !ok {
		return nil, newCatchable(FoldIteratesOverNonArray,
			"fold iterates over %s, which is %s, not an array", iterable, ir.TypeName(r.value))
	}

	perElement := len(r.tetraplets) == len(arr)
	switch v := iterable.(type) {
	case air.CanonStream:
		perElement = perElement && v.Lambda.IsEmpty()
	case air.CanonMap:
		perElement = perElement && v.Lambda.IsEmpty()
	case air.ArrayLiteral:
	default:
		perElement = false
	}

	items := make([]foldItem, len(arr))
	for i, v := range arr {
		item := foldItem{value: v, provenance: r.provenance}
		if perElement {
			item.tetraplet = r.tetraplets[i]
		} else {
			item.tetraplet = elementTetraplet(r.tetraplet(), i)
		}
		items[i] = item
	}
	return items, nil
}

func elementTetraplet(tp ir.Tetraplet, i int) ir.Tetraplet {
	step := ".[" + strconv.Itoa(i) + "]"
	if tp.LambdaPath == "" {
		step = ".$" + step
	}
	return tp.WithLambda(step)
}

// foldStream iterates a stream in rounds. A round is one next-chain over
// the values of every generation that appeared since the previous round, so
// values the body appends are visited by the next round. A round starts
// only once the previous one completed.
func (e *Executor) foldStream(f air.Fold, s *stream.Stream) (bool, error) {
	id := e.nextFoldID
	e.nextFoldID++
	if err := e.handler.MeetFoldStart(id); err != nil {
		return false, e.traceError(f, err)
	}

	st := &foldState{fold: f, id: id, stream: true}
	e.pushFold(st)
	defer e.popFold(f.Iterator)

	var (
		cursor   stream.Cursor
		iterated bool
		chainErr error
	)
	complete := true
	for complete {
		s.CloseGeneration()
		items := streamItems(s.SlicesFrom(cursor))
		cursor = s.Cursor()
		if len(items) == 0 {
			break
		}
		st.items = items
		st.idx = 0
		iterated = true

		done, err := e.iterate(st)
		if IsUncatchable(err) {
			return false, err
		}
		if err != nil {
			chainErr = err
			break
		}
		complete = done
	}

	if err := e.handler.MeetFoldEnd(id); err != nil {
		return false, e.traceError(f, err)
	}
	if chainErr != nil {
		return false, chainErr
	}
	if complete && (st.exhausted || !iterated) {
		return e.foldLast(f)
	}
	return complete, nil
}

func streamItems(slices [][]stream.Value) []foldItem {
	var items []foldItem
	for _, slice := range slices {
		for _, v := range slice {
			items = append(items, foldItem{value: v.Result, tetraplet: v.Tetraplet, provenance: v.Provenance, pos: v.TracePos})
		}
	}
	return items
}

// foldLast runs the last instruction of a fold at fold level, after every
// iteration frame is gone.
func (e *Executor) foldLast(f air.Fold) (bool, error) {
	if f.Last == nil {
		return true, nil
	}
	return e.execute(f.Last)
}

// iterate runs the fold body over the current item.
func (e *Executor) iterate(st *foldState) (bool, error) {
	item := st.items[st.idx]
	if st.stream {
		if err := e.handler.MeetIterationStart(st.id, item.pos); err != nil {
			return false, e.traceError(st.fold, err)
		}
	}

	e.scalars.push()
	complete, err := e.runIteration(st, item)
	e.scalars.pop()
	if IsUncatchable(err) {
		return false, err
	}

	if st.stream {
		if herr := e.handler.MeetIterationEnd(st.id); herr != nil {
			return false, e.traceError(st.fold, herr)
		}
	}
	return complete, err
}

func (e *Executor) runIteration(st *foldState, item foldItem) (bool, error) {
	bound := scalar{value: item.value, tetraplet: item.tetraplet, provenance: item.provenance}
	if err := e.defineScalar(st.fold, st.fold.Iterator, bound); err != nil {
		return false, err
	}
	return e.execute(st.fold.Body)
}

func (e *Executor) next(n air.Next) (bool, error) {
	stack := e.folds[n.Iterator]
	if len(stack) == 0 {
		return false, fmt.Errorf("next over %s outside of its fold", n.Iterator)
	}
	st := stack[len(stack)-1]

	if st.idx+1 >= len(st.items) {
		st.exhausted = true
		return true, nil
	}

	if st.stream {
		if err := e.handler.MeetNextStart(st.id); err != nil {
			return false, e.traceError(n, err)
		}
	}

	st.idx++
	complete, err := e.iterate(st)
	st.idx--
	if IsUncatchable(err) {
		return false, err
	}

	if st.stream {
		if herr := e.handler.MeetNextEnd(st.id); herr != nil {
			return false, e.traceError(n, herr)
		}
	}
	return complete, err
}
