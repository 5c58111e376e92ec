// Package crawler assembles a parcel's PropertyInfo from the site's section
// pages and the PDFs they link to, and defines the error taxonomy shared by the
// session, worker and CLI layers.
package crawler
