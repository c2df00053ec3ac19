// Package vehicle models the race car's kinematics: integer position, velocity and
// acceleration on an unbounded plane. It knows nothing about the track; walls and the
// edges of the grid are the driving policy's concern.
package vehicle

import (
	"math/rand"
)

const (
	// Kinematic limits in the x and y direction. A velocity of 1 means traveling one grid cell per time step.
	MAX_VELOCITY = 5
	MIN_VELOCITY = -MAX_VELOCITY

	// SLIP_CHANCE is the probability that an acceleration is ignored for one step.
	SLIP_CHANCE = 0.20
)

// Car is the controlled vehicle. Its step counter only ever grows: resets move the car
// but keep counting time.
type Car struct {
	// SlipChance is the probability of the actuator ignoring an acceleration.
	SlipChance float64

	startX, startY int
	x, y           int
	vx, vy         int
	ax, ay         int
	steps          int
	rng            *rand.Rand
}

// NewCar places a stationary car at its spawn point. All randomness is drawn from rng.
func NewCar(x, y int, rng *rand.Rand) *Car {
	return &Car{
		SlipChance: SLIP_CHANCE,
		startX:     x,
		startY:     y,
		x:          x,
		y:          y,
		rng:        rng,
	}
}

// ApplyAcceleration advances the car one time step. With probability SlipChance the
// acceleration is ignored and treated as (0, 0). Velocity is updated first and clamped to
// [MIN_VELOCITY, MAX_VELOCITY] per axis, then position moves by the new velocity.
func (c *Car) ApplyAcceleration(ax, ay int) {
	if c.rng.Float64() < c.SlipChance {
		c.ax, c.ay = 0, 0
	} else {
		c.ax, c.ay = ax, ay
	}

	c.vx = clamp(c.vx+c.ax, MIN_VELOCITY, MAX_VELOCITY)
	c.vy = clamp(c.vy+c.ay, MIN_VELOCITY, MAX_VELOCITY)
	c.x += c.vx
	c.y += c.vy
	c.steps++
}

// Reset returns the car to its spawn point at rest.
func (c *Car) Reset() {
	c.ResetTo(c.startX, c.startY)
}

// ResetTo teleports the car to x/y at rest.
func (c *Car) ResetTo(x, y int) {
	c.x, c.y = x, y
	c.vx, c.vy = 0, 0
	c.ax, c.ay = 0, 0
}

// Position returns the current, possibly off-track, position.
func (c *Car) Position() (x, y int) { return c.x, c.y }

func (c *Car) Velocity() (vx, vy int)     { return c.vx, c.vy }
func (c *Car) Acceleration() (ax, ay int) { return c.ax, c.ay }
func (c *Car) Spawn() (x, y int)          { return c.startX, c.startY }

// Steps is the number of accelerations applied since the car was created.
func (c *Car) Steps() int { return c.steps }

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
