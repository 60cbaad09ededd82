package lifecycle

import (
	"errors"
	"time"
)

type ComponentState int

const (
	// Unknown is the state of the component when it is not known.
	Unknown ComponentState = iota
	// Error is the state of the component when it is in error.
	Error
	// Stopped is the state of the component when it is stopped.
	Stopped
	//Stopping is the state of the component when it is stopping.
	Stopping
	// Running is the state of the component when it is running.
	Running
	// Starting is the state of the component when it is starting.
	Starting
)

var ErrCompNotFound = errors.New("component not found")

var ErrCompAlreadyStarted = errors.New("component already started")

var ErrCompAlreadyStopped = errors.New("component already stopped")

var ErrInvalidComponentState = errors.New("invalid component state")

// ErrCyclicDependency is returned by AddDependency when dependsOn already
// depends directly on id. Longer cycles through intermediate components are
// not detected.
var ErrCyclicDependency = errors.New("cyclic dependency detected")

// ErrTimeout is returned by the *WithTimeout variants when a component does
// not finish starting or stopping within the given duration.
var ErrTimeout = errors.New("component operation timed out")

// Component is the interface that wraps the basic Start and Stop methods.
type Component interface {
	// Id is the unique identifier for the component.
	Id() string
	//OnChange is the function that will be called when the component state changes.
	OnChange(f func(prevState, newState ComponentState))
	// Start will starting the LifeCycle.
	Start() error
	// Stop will stop the LifeCycle.
	Stop() error
	// State will return the current state of the LifeCycle.
	State() ComponentState
}

// ComponentManager is the interface that manages multiple components.
type ComponentManager interface {
	// AddDependency records that the component id depends on dependsOn, meaning
	// dependsOn is started first and stopped last.
	AddDependency(id, dependsOn string) error
	// GetState will return the current state of the LifeCycle for the component with the given id.
	GetState(id string) ComponentState
	//List will return a list of all the Components.
	List() []Component
	// Register will register a new Components.
	Register(component Component) Component
	// StartAll will start all the Components.
	StartAll() error
	//StartAndWait will start all the Components and wait for them to finish.
	StartAndWait()
	// Start will start the LifeCycle for the component with the given id.
	// It returns an error if the component was not found or if the component failed to start.
	Start(id string) error
	// StartWithTimeout starts the component with the given id and returns
	// ErrTimeout if it does not finish starting within the given duration.
	StartWithTimeout(id string, timeout time.Duration) error
	// StartAllWithTimeout starts all the components and returns ErrTimeout if
	// they do not all finish starting within the given duration.
	StartAllWithTimeout(timeout time.Duration) error
	// StopAll will stop all the Components.
	StopAll() error
	// Stop will stop the LifeCycle for the component with the given id. It returns if the component was stopped.
	Stop(id string) error
	// StopWithTimeout stops the component with the given id and returns
	// ErrTimeout if it does not finish stopping within the given duration.
	StopWithTimeout(id string, timeout time.Duration) error
	// StopAllWithTimeout stops all the components and returns ErrTimeout if
	// they do not all finish stopping within the given duration.
	StopAllWithTimeout(timeout time.Duration) error
	// Unregister will unregister a Component.
	Unregister(id string)
	// Wait will wait for all the Components to finish.
	Wait()
}
