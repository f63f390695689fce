package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_NEXTSONG     = 163
	KEY_PLAYPAUSE    = 164
	KEY_PREVIOUSSONG = 165
	KEY_STOPCD       = 166
	KEY_PLAYCD       = 200
	KEY_PAUSECD      = 201
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultTickHz               = 4    // reducer tick rate (connect timeout checks)
	defaultInitialVolumePercent = 50   // applied once per device attach
	defaultPollIntervalMS       = 1000 // device subscription poll interval
	defaultAPITimeoutMS         = 10000
	defaultHTTPPort             = 3001
	defaultCameraFPS            = 2
	defaultMaxFrameWidth        = 640

	// deviceCommandTimeout bounds a single player call on the device worker.
	deviceCommandTimeout = 10 * time.Second

	// snapshotWait bounds how long IPC and websocket clients wait for a state snapshot.
	snapshotWait = time.Second

	// librespot reports volume on a 0-65535 scale.
	spotifyVolumeMax = 65535.0
)
