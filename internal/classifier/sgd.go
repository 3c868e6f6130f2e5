package classifier

// SGD applies plain stochastic gradient descent to a LinearHead. It owns no
// state beyond the learning rate; the head holds the accumulated gradients.
type SGD struct {
	head *LinearHead
	lr   float32
}

// NewSGD creates an optimizer for the given head.
func NewSGD(head *LinearHead, learningRate float32) *SGD {
	return &SGD{head: head, lr: learningRate}
}

// Step applies one update using the currently accumulated gradients:
// p -= lr * grad.
func (o *SGD) Step() {
	for i, g := range o.head.GradW {
		o.head.W[i] -= o.lr * g
	}
	for i, g := range o.head.GradB {
		o.head.B[i] -= o.lr * g
	}
}

// ZeroGrad clears the accumulated gradients.
func (o *SGD) ZeroGrad() {
	for i := range o.head.GradW {
		o.head.GradW[i] = 0
	}
	for i := range o.head.GradB {
		o.head.GradB[i] = 0
	}
}
