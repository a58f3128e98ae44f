package pipeline

import "middleware-pipeline/middleware/identity"

// Identity é reexportada para quem só importa pipeline.
type Identity = identity.Identity
