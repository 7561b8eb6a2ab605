package simplecl

// FlipFlop produces iterations copies of the template step that alternate
// buffers a and b between the input and output roles: the first copy
// prepends a to the template's inputs and writes to b, the second prepends
// b and writes to a, and so on. Chaining the result through Compile applies
// the kernel iterations times without any host-side copying between
// iterations ("ping-pong" buffering).
//
// Which of the two buffers holds the final state depends on the parity of
// iterations: after an odd count it is b, after an even count it is a.
// FlipFlop does not validate or normalize this; callers that need the
// result in a specific buffer must pick an odd or even count deliberately.
func FlipFlop(iterations int, a, b *Buffer, template Step) []Step {
	steps := make([]Step, 0, iterations)
	for i := 0; i < iterations; i++ {
		in, out := a, b
		if i%2 == 1 {
			in, out = b, a
		}
		step := template
		step.In = make([]Input, 0, len(template.In)+1)
		step.In = append(step.In, Lit(in))
		step.In = append(step.In, template.In...)
		step.Out = []Input{Lit(out)}
		steps = append(steps, step)
	}
	return steps
}
