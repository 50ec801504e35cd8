// Package host provides stand-ins for the platform services a mobile host
// would supply: the exposure engine, notification center, UI overlay and
// friends. They log what a device would do, which is enough to drive the
// orchestration core from the command line.
package host
