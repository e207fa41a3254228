package skinning

// PackerBuilderOption is a functional option for configuring a Packer.
// Use the With* functions to create options.
type PackerBuilderOption func(p *packer)

// WithWorkers sets the number of goroutines used to resolve unique skins.
// Values above 1 resolve skins concurrently on a reusable worker pool; serialization always
// happens in mesh order afterwards, so the packed bytes do not depend on the worker count.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - PackerBuilderOption: option function to apply
func WithWorkers(n int) PackerBuilderOption {
	return func(p *packer) {
		if n < 1 {
			n = 1
		}
		p.workers = n
	}
}
