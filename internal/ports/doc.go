// Package ports defines the interfaces (ports) that connect the orchestration
// core to its external collaborators.
//
// Ports are the boundaries between the application core and the outside
// world. They state what the core needs from the host platform without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [ExposureEngine]: proximity engine status and start
//   - [PushPermission]: push-notification authorization query
//   - [ConfigService]: configuration download and apply
//   - [DetectionInvoker]: fire-and-forget exposure detection
//   - [AnalyticsService]: analytics token and window maintenance
//   - [NotificationPresenter]: risk-reminder removal
//   - [SensitiveDataOverlay]: privacy overlay shown while inactive
//   - [DummyTransport]: sends dummy requests shaped like genuine ones
//   - [StateRepository]: persists toggles and opportunity windows
//   - [Clock]: injectable time source
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (file system, SQLite, HTTP, zerolog, etc.).
package ports
