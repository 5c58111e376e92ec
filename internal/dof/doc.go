// Package dof knows the layout of the Department of Finance property tax site:
// which sidebar sections exist, how their document tables are laid out, and how
// facts are read out of the text of the PDFs they link to.
//
// Everything here is a pure function of its input; fetching lives elsewhere.
package dof
