// Package mapper transfers nodal fields between two non-matching,
// distributed model parts. A Mapper searches the origin for every
// destination node, turns the matches into local interpolation systems
// and assembles them into a sparse operator that is reused until the
// interface changes.
package mapper

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/notargets/DGMapper/comm"
	"github.com/notargets/DGMapper/modelpart"
	"github.com/notargets/DGMapper/search"
	"github.com/notargets/DGMapper/utils"
	"github.com/sirupsen/logrus"
)

// MapOptions modify how transferred values are written
type MapOptions struct {
	SwapSign     bool // Negate the transferred values
	AddValues    bool // Accumulate into the target instead of overwriting
	Conservative bool // Use the transposed opposite operator, preserving sums
}

// Report summarizes the last forward setup. Counts are global.
type Report struct {
	Epoch           int
	EpochID         uuid.UUID
	Kind            search.MapperKind
	Rows            int
	Approximated    int64
	Failed          int64
	InvalidGeometry int64
	Rounds          int
	Radius          float64
}

// side is one model part with its dof numbering and ghost exchange
type side struct {
	mp         *modelpart.ModelPart
	dofs       *utils.DofNumbering
	owned      []int               // Node positions in dof order
	ghostNodes []int               // Node positions of ghosts
	ghostSlots []int               // Positions of the ghosts in ghosts.Needed
	ghosts     *utils.ExchangePlan // Owner values of the ghost nodes
}

func newSide(ctx context.Context, c comm.Communicator, mp *modelpart.ModelPart) (*side, error) {
	var (
		rank     = c.Rank()
		s        = &side{mp: mp}
		ownedIDs []int
		refs     []utils.GhostRef
	)
	for i, n := range mp.Nodes {
		if n.Rank == rank {
			s.owned = append(s.owned, i)
			ownedIDs = append(ownedIDs, n.ID)
			continue
		}
		s.ghostNodes = append(s.ghostNodes, i)
		refs = append(refs, utils.GhostRef{ID: n.ID, Owner: n.Rank})
	}
	var err error
	if s.dofs, err = utils.NewDofNumbering(ctx, c, ownedIDs, refs); err != nil {
		return nil, fmt.Errorf("model part %s: %w", mp.Name, err)
	}
	needed := make([]int, len(refs))
	for i, g := range refs {
		needed[i], _ = s.dofs.Global(g.ID)
	}
	if s.ghosts, err = utils.NewExchangePlan(ctx, c, s.dofs, needed); err != nil {
		return nil, fmt.Errorf("model part %s: %w", mp.Name, err)
	}
	s.ghostSlots = make([]int, len(needed))
	for i, d := range needed {
		s.ghostSlots[i] = s.ghosts.Position(d)
	}
	return s, nil
}

// Mapper maps fields between an origin and a destination model part. All
// methods taking a context are collective over Context.Comm.
type Mapper struct {
	mc   Context
	opts search.Options
	log  logrus.FieldLogger

	originMP, destinationMP *modelpart.ModelPart
	origin, destination     *side

	forward  *MappingMatrix // origin -> destination
	inverse  *MappingMatrix // destination -> origin
	pairings []search.PairingInfo
	epoch    int
	report   Report
}

// New validates the settings and numbers the dofs of both model parts.
// No search runs until an operator is needed. Collective.
func New(ctx context.Context, mc Context, origin, destination *modelpart.ModelPart) (*Mapper, error) {
	if err := mc.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("mapper settings: %w", err)
	}
	opts, err := mc.Settings.SearchOptions()
	if err != nil {
		return nil, err
	}
	m := &Mapper{
		mc:            mc,
		opts:          opts,
		originMP:      origin,
		destinationMP: destination,
		log: mc.logger().WithFields(logrus.Fields{
			"rank":   mc.Comm.Rank(),
			"mapper": opts.Kind.String(),
		}),
	}
	if err = m.setup(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mapper) setup(ctx context.Context) (err error) {
	if m.origin, err = newSide(ctx, m.mc.Comm, m.originMP); err != nil {
		return err
	}
	m.destination, err = newSide(ctx, m.mc.Comm, m.destinationMP)
	return err
}

// BuildMappingMatrix returns the origin to destination operator, running
// the search on first use after New or UpdateInterface. Collective.
func (m *Mapper) BuildMappingMatrix(ctx context.Context) (*MappingMatrix, error) {
	if m.forward != nil {
		return m.forward, nil
	}
	mat, systems, res, err := m.build(ctx, m.origin, m.destination)
	if err != nil {
		return nil, err
	}
	m.forward = mat
	m.pairings = make([]search.PairingInfo, len(systems))
	for i := range systems {
		m.pairings[i] = systems[i].Pairing()
	}
	m.report = Report{
		Epoch:           mat.Epoch,
		EpochID:         mat.EpochID,
		Kind:            m.opts.Kind,
		Rows:            m.destination.dofs.NumGlobal(),
		Approximated:    res.GlobalApproximated,
		Failed:          res.GlobalFailed,
		InvalidGeometry: res.InvalidGeometry,
		Rounds:          res.Rounds,
		Radius:          res.Radius,
	}
	m.logReport()
	return mat, nil
}

func (m *Mapper) inverseMatrix(ctx context.Context) (*MappingMatrix, error) {
	if m.inverse != nil {
		return m.inverse, nil
	}
	mat, _, _, err := m.build(ctx, m.destination, m.origin)
	if err != nil {
		return nil, err
	}
	m.inverse = mat
	return mat, nil
}

// build searches from for the owned nodes of to and assembles the operator
func (m *Mapper) build(ctx context.Context, from, to *side) (*MappingMatrix, []LocalSystem, *search.Result, error) {
	c := m.mc.Comm
	objects, err := m.objects(from)
	if err != nil {
		return nil, nil, nil, err
	}
	queries := make([]search.Query, len(to.owned))
	for row, pos := range to.owned {
		queries[row] = search.Query{LocalSystemIndex: row, Coords: to.mp.Nodes[pos].Coords}
	}
	sc := &search.Coordinator{Comm: c, Options: m.opts, Logger: m.mc.searchLogger()}
	res, err := sc.Run(ctx, queries, objects)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("searching %s for %s: %w", from.mp.Name, to.mp.Name, err)
	}

	systems := make([]LocalSystem, len(queries))
	for row := range systems {
		systems[row] = LocalSystem{
			DestinationID: to.mp.Nodes[to.owned[row]].ID,
			Row:           row,
			Info:          res.Infos[row],
		}
		if err = systems[row].Calculate(); err != nil {
			return nil, nil, nil, err
		}
	}
	mat, err := Assemble(ctx, c, systems, len(to.owned), from.dofs)
	if err != nil {
		return nil, nil, nil, err
	}
	m.epoch++
	if mat.EpochID, err = m.epochID(ctx); err != nil {
		return nil, nil, nil, err
	}
	mat.Epoch = m.epoch
	return mat, systems, res, nil
}

// objects builds the source arena: elements for NearestElement when the
// model part has any, owned nodes otherwise
func (m *Mapper) objects(from *side) ([]search.InterfaceObject, error) {
	var objs []search.InterfaceObject
	if m.opts.Kind == search.NearestElement && len(from.mp.Elements) > 0 {
		for _, e := range from.mp.Elements {
			g, err := from.mp.Geometry(e)
			if err != nil {
				return nil, err
			}
			dofs := make([]int, len(e.Nodes))
			for k, nid := range e.Nodes {
				d, ok := from.dofs.Global(nid)
				if !ok {
					return nil, fmt.Errorf("element %d: node %d has no dof", e.ID, nid)
				}
				dofs[k] = d
			}
			o, err := search.NewGeometryObject(len(objs), e.ID, g, dofs)
			if err != nil {
				return nil, err
			}
			objs = append(objs, o)
		}
		return objs, nil
	}
	for _, pos := range from.owned {
		n := from.mp.Nodes[pos]
		d, _ := from.dofs.Global(n.ID)
		objs = append(objs, search.NewPointObject(len(objs), n.ID, n.Coords, d))
	}
	return objs, nil
}

// epochID is chosen by rank 0 and shared
func (m *Mapper) epochID(ctx context.Context) (uuid.UUID, error) {
	var local []byte
	if m.mc.Comm.Rank() == 0 {
		id := uuid.New()
		local = id[:]
	}
	data, err := comm.Broadcast(ctx, m.mc.Comm, 0, local)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(data)
}

func (m *Mapper) logReport() {
	if m.mc.Settings.EchoLevel < 1 || m.mc.Comm.Rank() != 0 {
		return
	}
	r := m.report
	log := m.log.WithFields(logrus.Fields{"epoch": r.Epoch, "epoch_id": r.EpochID})
	log.Infof("mapping %s -> %s: %d rows, %d approximated, %d failed, %d rounds, radius %g",
		m.originMP.Name, m.destinationMP.Name, r.Rows, r.Approximated, r.Failed, r.Rounds, r.Radius)
	if r.Failed > 0 {
		log.Warnf("%d destination nodes have no source match and map to an empty row", r.Failed)
	}
	if r.InvalidGeometry > 0 {
		log.Warnf("%d degenerate source geometries skipped", r.InvalidGeometry)
	}
}

// Map transfers originField onto destinationField. Collective.
func (m *Mapper) Map(ctx context.Context, originField, destinationField *modelpart.Field, opts MapOptions) error {
	if err := m.checkFields(originField, destinationField); err != nil {
		return err
	}
	var (
		mat *MappingMatrix
		err error
	)
	if opts.Conservative {
		mat, err = m.inverseMatrix(ctx)
	} else {
		mat, err = m.BuildMappingMatrix(ctx)
	}
	if err != nil {
		return err
	}
	return m.transfer(ctx, mat, opts.Conservative, originField, m.origin, destinationField, m.destination, opts)
}

// InverseMap transfers destinationField back onto originField. Collective.
func (m *Mapper) InverseMap(ctx context.Context, originField, destinationField *modelpart.Field, opts MapOptions) error {
	if err := m.checkFields(originField, destinationField); err != nil {
		return err
	}
	var (
		mat *MappingMatrix
		err error
	)
	if opts.Conservative {
		mat, err = m.BuildMappingMatrix(ctx)
	} else {
		mat, err = m.inverseMatrix(ctx)
	}
	if err != nil {
		return err
	}
	return m.transfer(ctx, mat, opts.Conservative, destinationField, m.destination, originField, m.origin, opts)
}

// transfer applies mat (or its transpose) component by component
func (m *Mapper) transfer(ctx context.Context, mat *MappingMatrix, transpose bool,
	src *modelpart.Field, from *side, dst *modelpart.Field, to *side, opts MapOptions) error {
	var (
		c = m.mc.Comm
		y = make([]float64, len(to.owned))
	)
	for comp := 0; comp < src.Components; comp++ {
		x := src.Component(comp, from.owned)
		var err error
		if transpose {
			err = mat.ApplyTranspose(ctx, c, x, y)
		} else {
			err = mat.Apply(ctx, c, x, y)
		}
		if err != nil {
			return err
		}
		for i, pos := range to.owned {
			v := y[i]
			if opts.SwapSign {
				v = -v
			}
			if opts.AddValues {
				v += dst.At(pos, comp)
			}
			dst.Set(pos, comp, v)
		}
		if err = to.syncGhosts(ctx, c, dst, comp); err != nil {
			return err
		}
	}
	return nil
}

// syncGhosts copies owner values of one component onto the ghost nodes
func (s *side) syncGhosts(ctx context.Context, c comm.Communicator, f *modelpart.Field, comp int) error {
	buf, err := s.ghosts.Gather(ctx, c, f.Component(comp, s.owned))
	if err != nil {
		return err
	}
	for i, pos := range s.ghostNodes {
		f.Set(pos, comp, buf[s.ghostSlots[i]])
	}
	return nil
}

func (m *Mapper) checkFields(origin, destination *modelpart.Field) error {
	dim := m.mc.Settings.Resolved().Dimension
	if origin.Type != destination.Type {
		return fmt.Errorf("%w: origin field %s is %s, destination field %s is %s",
			ErrDimensionMismatch, origin.Name, origin.Type, destination.Name, destination.Type)
	}
	for _, fs := range []struct {
		f *modelpart.Field
		s *side
	}{{origin, m.origin}, {destination, m.destination}} {
		if want := fs.f.Type.ComponentsFor(dim); fs.f.Components != want {
			return fmt.Errorf("%w: %s field %s has %d components, expected %d in %dD",
				ErrDimensionMismatch, fs.f.Type, fs.f.Name, fs.f.Components, want, dim)
		}
		if len(fs.f.Values) != len(fs.s.mp.Nodes)*fs.f.Components {
			return fmt.Errorf("field %s has %d values for %d nodes of %s",
				fs.f.Name, len(fs.f.Values), len(fs.s.mp.Nodes), fs.s.mp.Name)
		}
	}
	return nil
}

// UpdateInterface discards both operators after the model parts changed.
// Matrices handed out earlier become stale; the next use searches again.
// Collective.
func (m *Mapper) UpdateInterface(ctx context.Context) error {
	for _, mat := range []*MappingMatrix{m.forward, m.inverse} {
		if mat != nil {
			mat.invalidate()
		}
	}
	m.forward, m.inverse, m.pairings = nil, nil, nil
	return m.setup(ctx)
}

// Report returns the summary of the last forward setup
func (m *Mapper) Report() Report { return m.report }

// Pairings returns the retained pairing of every owned destination node
// of the forward operator, nil before it is built
func (m *Mapper) Pairings() []search.PairingInfo { return m.pairings }

// Epoch returns the number of operators built so far
func (m *Mapper) Epoch() int { return m.epoch }
