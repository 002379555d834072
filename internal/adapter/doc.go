// Package adapter binds a host editor widget to the virtual document
// and connection machinery.
//
// One adapter serves one host widget: a plain file editor or a
// notebook. It turns the widget's regions into update passes over the
// document tree, requests a shared language server connection for
// every document in the tree, and drives the LSP text document
// lifecycle: didOpen once a document is composed and its connection is
// ready, a full didChange per committed recomposition, didSave on host
// save, didClose on disposal. Foreign documents discovered during
// composition are wired the same way, symmetrically torn down when
// they vanish.
package adapter
