package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/camharness/camharness-go/internal/testharness/engine"
	"github.com/camharness/camharness-go/internal/testharness/loader"
	"github.com/camharness/camharness-go/pkg/bus"
	"github.com/camharness/camharness-go/pkg/camera"
	"github.com/camharness/camharness-go/pkg/frame"
	"github.com/camharness/camharness-go/pkg/harness"
)

// caseSession holds the nodes of one case. Each case gets its own bus
// context, so nothing leaks from one case into the next.
type caseSession struct {
	id         harness.Identifier
	bctx       *bus.Context
	camera     *camera.Camera
	node       *harness.TestNode
	cameraName string

	// frames are the frames returned by the latest wait step.
	frames []*frame.Frame
}

func (s *caseSession) close() error {
	var errs []error
	if s.node != nil {
		errs = append(errs, s.node.Close())
	}
	if s.camera != nil {
		errs = append(errs, s.camera.Close())
	}
	if s.bctx != nil {
		errs = append(errs, s.bctx.Shutdown())
	}
	return errors.Join(errs...)
}

func (r *Runner) setupCase(ctx context.Context, tc *loader.TestCase, state *engine.ExecutionState) error {
	id := r.config.IDGenerator()
	if err := id.Validate(); err != nil {
		return err
	}
	s := &caseSession{id: id, cameraName: r.config.CameraName}

	bctx, err := dialWithRetry(ctx, r.config.ConnectAttempts, func() (*bus.Context, error) {
		bctx, err := bus.Init(ctx, r.busOptions()...)
		if err != nil && isIOError(err) {
			return nil, Infrastructure(err)
		}
		return bctx, err
	})
	if err != nil {
		return fmt.Errorf("init bus: %w", err)
	}
	s.bctx = bctx

	if s.cameraName == "" {
		config := r.config.Camera
		if err := config.ApplyParameters(tc.Camera); err != nil {
			_ = s.close()
			return Scenario(fmt.Errorf("camera parameters: %w", err))
		}
		config.Name = id.CameraNodeName()
		config.Namespace = ""
		cam, err := camera.New(bctx, config)
		if err != nil {
			_ = s.close()
			return fmt.Errorf("launch camera: %w", err)
		}
		s.camera = cam
		s.cameraName = cam.Name()
	}

	node, err := harness.NewTestNode(bctx, id.TestNodeName(), s.cameraName, harness.Config{
		GraceInterval: r.config.GraceInterval,
		QueueMaxLen:   r.config.QueueMaxLen,
		Logger:        r.logger,
	})
	if err != nil {
		_ = s.close()
		return fmt.Errorf("create test node: %w", err)
	}
	s.node = node

	state.Custom[customSession] = s
	state.Set(StateHarnessID, string(id))
	state.Set(StateNodeName, node.Name())
	state.Set(StateCameraName, s.cameraName)
	state.Set(StateImageTopic, s.cameraName+"/image_raw")
	r.logger.Debug("case started", "case", tc.ID, "id", string(id), "camera", s.cameraName)
	return nil
}

func (r *Runner) teardownCase(_ context.Context, tc *loader.TestCase, state *engine.ExecutionState) error {
	s, ok := state.Custom[customSession].(*caseSession)
	if !ok {
		return nil
	}
	delete(state.Custom, customSession)
	r.logger.Debug("case finished", "case", tc.ID, "id", string(s.id))
	return s.close()
}

func session(state *engine.ExecutionState) (*caseSession, error) {
	s, ok := state.Custom[customSession].(*caseSession)
	if !ok {
		return nil, errors.New("no case session")
	}
	return s, nil
}
