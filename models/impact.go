package models

import (
	"context"
	"time"

	"github.com/aukilabs/brotna/integrity"
	"github.com/aukilabs/brotna/journal"
	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/brotna/scheduler"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

// Impact carves a sphere into a destructible. Once every chunk it touches is
// carved, the cells inside the sphere are destroyed.
type Impact struct {
	Location mgl64.Vec3 `json:"location"`
	Radius   float64    `json:"radius"`

	// Penetrating impacts are carved before surface ones.
	Penetrating bool `json:"penetrating"`
}

type pendingImpact struct {
	impact    Impact
	pending   int
	completed int
}

// Impact queues the carving of an impact and returns its id.
func (d *Destructible) Impact(i Impact) (uint32, error) {
	if i.Radius <= 0 {
		instrumentImpact(d.Name, "invalid")
		return 0, errors.New("impact radius must be positive").
			WithType(scheduler.ErrTypeInvalidInput).
			WithTag("destructible", d.Name).
			WithTag("radius", i.Radius)
	}

	reach := mesh.NewBounds(
		i.Location.Sub(mgl64.Vec3{i.Radius, i.Radius, i.Radius}),
		i.Location.Add(mgl64.Vec3{i.Radius, i.Radius, i.Radius}),
	)

	d.chunkMutex.RLock()
	var chunks []int
	for id, c := range d.chunks {
		if !c.IsEmpty() && c.Bounds().Intersects(reach, 0) {
			chunks = append(chunks, id)
		}
	}
	d.chunkMutex.RUnlock()

	if len(chunks) == 0 {
		instrumentImpact(d.Name, "missed")
		return 0, errors.New("impact does not reach the destructible").
			WithType(ErrTypeImpactMissed).
			WithTag("destructible", d.Name).
			WithTag("location", i.Location)
	}

	transform := mesh.TranslationTransform(i.Location)
	transform.Scale = mgl64.Vec3{i.Radius, i.Radius, i.Radius}

	d.impactMutex.Lock()
	impactID := d.impactIDs.New()
	p := &pendingImpact{impact: i}
	d.impacts[impactID] = p

	for _, chunk := range chunks {
		requestID := d.requestIDs.New()
		err := d.scheduler.Enqueue(scheduler.Request{
			ID:          requestID,
			Chunk:       chunk,
			Tool:        d.tool,
			Transform:   transform,
			Penetrating: i.Penetrating,
		})
		if err != nil {
			d.requestIDs.Reuse(requestID)
			logs.Warn(errors.New("queuing impact request failed").
				WithTag("destructible", d.Name).
				WithTag("impact_id", impactID).
				Wrap(err))
			continue
		}
		d.requests[requestID] = impactID
		p.pending++
	}

	if p.pending == 0 {
		delete(d.impacts, impactID)
		d.impactIDs.Reuse(impactID)
		d.impactMutex.Unlock()

		instrumentImpact(d.Name, "rejected")
		return 0, errors.New("no impact request was queued").
			WithType(scheduler.ErrTypeShutdown).
			WithTag("destructible", d.Name)
	}
	d.impactMutex.Unlock()

	d.journal.Record(journal.Event{
		Kind:         journal.KindImpact,
		Destructible: d.Name,
		RequestID:    impactID,
		Location:     &i.Location,
		Radius:       i.Radius,
	})
	instrumentImpact(d.Name, "queued")

	logs.WithTag("destructible", d.Name).
		WithTag("impact_id", impactID).
		WithTag("chunks", len(chunks)).
		Debug("impact queued")
	return impactID, nil
}

func (d *Destructible) NotifyBooleanCompleted(requestID uint32) {
	d.finishRequest(requestID, true)
}

func (d *Destructible) NotifyBooleanSkipped(requestID uint32) {
	d.finishRequest(requestID, false)

	d.journal.Record(journal.Event{
		Kind:         journal.KindSkipped,
		Destructible: d.Name,
		RequestID:    requestID,
	})
}

func (d *Destructible) finishRequest(requestID uint32, completed bool) {
	d.impactMutex.Lock()
	impactID, ok := d.requests[requestID]
	if !ok {
		d.impactMutex.Unlock()
		return
	}
	delete(d.requests, requestID)
	d.requestIDs.Reuse(requestID)

	p := d.impacts[impactID]
	p.pending--
	if completed {
		p.completed++
	}
	if p.pending > 0 {
		d.impactMutex.Unlock()
		return
	}
	delete(d.impacts, impactID)
	d.impactIDs.Reuse(impactID)
	d.impactMutex.Unlock()

	if p.completed == 0 {
		instrumentImpact(d.Name, "skipped")
		return
	}
	instrumentImpact(d.Name, "carved")

	cells := d.cells.CellsInSphere(p.impact.Location, p.impact.Radius)
	if len(cells) == 0 {
		return
	}
	d.async.DestroyCells(context.Background(), cells)
}

// Hit damages the cells around a location and cuts out the fragments it
// detaches. The mesh is not carved.
func (d *Destructible) Hit(location mgl64.Vec3, damage float64, radius int) integrity.Result {
	r := d.integrity.ProcessHitAtLocation(location, damage, radius)
	d.handleResult(r)
	return r
}

// DestroyCells destroys the given cells in the background. The result is
// handled by Tick.
func (d *Destructible) DestroyCells(ctx context.Context, cellIDs []int) (taskID uint32, cancel func()) {
	return d.async.DestroyCells(ctx, cellIDs)
}

func (d *Destructible) handleResult(r integrity.Result) {
	if !r.HasChanges() {
		return
	}

	logs.WithTag("destructible", d.Name).
		WithTag("destroyed", len(r.NewlyDestroyed)).
		WithTag("detached_groups", len(r.DetachedGroups)).
		WithTag("total_destroyed", r.TotalDestroyedCount).
		Debug("structural update")

	for _, g := range r.DetachedGroups {
		d.cutDebris(g)
	}

	if r.Collapsed {
		d.journal.Record(journal.Event{
			Kind:         journal.KindCollapse,
			Destructible: d.Name,
			Cells:        r.TotalDestroyedCount,
		})
		logs.WithTag("destructible", d.Name).
			WithTag("id", d.ID).
			Info("destructible collapsed")
	}
}

// cutDebris removes the triangles of a detached group from the chunks and
// hands them to the debris spawner as one mesh.
func (d *Destructible) cutDebris(g integrity.DetachedGroup) {
	cells := make(map[int]struct{}, len(g.CellIDs))
	for _, id := range g.CellIDs {
		cells[id] = struct{}{}
	}

	debrisMesh := &mesh.Mesh{}

	d.chunkMutex.Lock()
	for id := range cells {
		d.detachedCells[id] = struct{}{}
	}
	if !d.settings.DisableDebris {
		for chunk, m := range d.chunks {
			ids := d.trianglesInCells(m, cells)
			if len(ids) == 0 {
				continue
			}
			debrisMesh.Append(m.Extract(ids))
			d.setChunk(chunk, m.Without(ids))
		}
	}
	d.chunkMutex.Unlock()

	d.journal.Record(journal.Event{
		Kind:         journal.KindDetached,
		Destructible: d.Name,
		Cells:        len(g.CellIDs),
		Mass:         g.ApproximateMass,
		Triangles:    debrisMesh.TriangleCount(),
	})

	if d.settings.DisableDebris || d.spawner == nil || debrisMesh.IsEmpty() {
		return
	}

	d.spawner.SpawnDebris(&Debris{
		DestructibleID: d.ID,
		GroupID:        g.GroupID,
		CellIDs:        g.CellIDs,
		CellKeys:       g.CellKeys,
		CenterOfMass:   g.CenterOfMass,
		Mass:           g.ApproximateMass,
		TriangleCount:  debrisMesh.TriangleCount(),
		SpawnedAt:      time.Now(),
		Mesh:           debrisMesh,
	})
}

// DestructibleStats is a snapshot of the state of a destructible.
type DestructibleStats struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Chunks        int             `json:"chunks"`
	Triangles     int             `json:"triangles"`
	PendingImpact int             `json:"pending_impacts"`
	Integrity     integrity.Stats `json:"integrity"`
	Scheduler     scheduler.Stats `json:"scheduler"`
}

func (d *Destructible) Stats() DestructibleStats {
	d.impactMutex.Lock()
	pending := len(d.impacts)
	d.impactMutex.Unlock()

	return DestructibleStats{
		ID:            d.ID,
		Name:          d.Name,
		Chunks:        d.ChunkCount(),
		Triangles:     d.TriangleCount(),
		PendingImpact: pending,
		Integrity:     d.integrity.Stats(),
		Scheduler:     d.scheduler.Stats(),
	}
}
